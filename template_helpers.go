package sso

import (
	"maps"

	"github.com/goliatone/go-router"
)

var TemplateUserKey = "current_user"

// FlashContextKey is where the flash middleware exposes the message
// carried over from the previous request
var FlashContextKey = "flash"

const (
	FlashSuccess = "success"
	FlashWarning = "warning"
	FlashError   = "error"
)

// FlashMessage builds the payload handed to flash.WithSuccess and
// flash.WithError. kind drives the styling in the layout.
func FlashMessage(kind, message string) router.ViewContext {
	return router.ViewContext{
		"kind":    kind,
		"message": message,
	}
}

// ViewData merges the per request globals every page needs into data.
//
// In templates, you can then use:
//
//	{% if current_user %}
//	{% if flash.message %}{{ flash.message }}{% endif %}
//	<input type="hidden" name="{{ csrf_field }}" value="{{ csrf_token }}">
func ViewData(c router.Context, data router.ViewContext) router.ViewContext {
	out := router.ViewContext{
		"is_authenticated": false,
		"csrf_token":       "",
		"csrf_field":       CSRFFormField,
	}

	if user, ok := CurrentUser(c, DefaultContextKey); ok {
		out[TemplateUserKey] = user
		out["is_authenticated"] = true
	}

	if token, ok := c.Locals(CSRFContextKey).(string); ok {
		out["csrf_token"] = token
	}

	if msg := flashFromLocals(c); len(msg) > 0 {
		out["flash"] = msg
	}

	maps.Copy(out, data)

	return out
}

func flashFromLocals(c router.Context) map[string]any {
	var msg map[string]any
	switch v := c.Locals(FlashContextKey).(type) {
	case router.ViewContext:
		msg = v
	case map[string]any:
		msg = v
	}

	if text, _ := msg["message"].(string); text == "" {
		return nil
	}
	return msg
}
