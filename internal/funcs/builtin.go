package funcs

import (
	"context"
	"fmt"
	"time"
)

// RegisterBuiltins installs the stock device functions. These are
// placeholder behaviors; real deployments replace them with handlers that
// talk to actual device integrations.
func RegisterBuiltins(r *Registry) error {
	builtins := []Function{
		New("play_music", func(ctx context.Context, args map[string]any) (string, error) {
			return "Okay, playing music for you now.", nil
		}),
		New("get_weather", func(ctx context.Context, args map[string]any) (string, error) {
			return "It's clear and mild today, a good day to be outside.", nil
		}),
		New("set_reminder", func(ctx context.Context, args map[string]any) (string, error) {
			return "Your reminder is set. I'll let you know when it's time.", nil
		}),
		New("control_light", func(ctx context.Context, args map[string]any) (string, error) {
			return "The lights are on.", nil
		}),
		New("control_ac", func(ctx context.Context, args map[string]any) (string, error) {
			return "The air conditioning is off.", nil
		}),
		New("play_story", func(ctx context.Context, args map[string]any) (string, error) {
			return "Alright, let me tell you a story...", nil
		}),
		New("get_time", func(ctx context.Context, args map[string]any) (string, error) {
			return fmt.Sprintf("It's %s right now.", time.Now().Format("3:04 PM")), nil
		}),
	}

	for _, f := range builtins {
		if err := r.Register(f); err != nil {
			return err
		}
	}
	return nil
}
