package handler

import (
	"regexp"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"fish-tracker/internal/model"
)

var (
	userNamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{1,32}$`)
	registerOnce    sync.Once
	registerErr     error
)

// RegisterValidators adds the "gamemode" and "username" binding tags to gin's
// validator. Safe to call more than once.
func RegisterValidators() error {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		if registerErr = v.RegisterValidation("gamemode", func(fl validator.FieldLevel) bool {
			return model.ValidGamemode(fl.Field().String())
		}); registerErr != nil {
			return
		}
		registerErr = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
			return userNamePattern.MatchString(fl.Field().String())
		})
	})
	return registerErr
}

type gamemodeQuery struct {
	Gamemode string `form:"gamemode" binding:"required,gamemode"`
}

type countQuery struct {
	Gamemode string `form:"gamemode" binding:"required,gamemode"`
	Count    int    `form:"count" binding:"omitempty,min=1,max=1000"`
}
