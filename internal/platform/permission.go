// Package platform stands in for the browser runtime: notification
// permission, push subscriptions held for this device and the worker
// registration the subscription manager waits on.
package platform

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/franzego/tourpush/internal/models"
	"github.com/redis/go-redis/v9"
)

const permissionKey = "push:permission"

// Prompter asks the user a yes/no question.
type Prompter interface {
	Confirm(ctx context.Context, title, description string) (bool, error)
}

// HuhPrompter prompts on the terminal.
type HuhPrompter struct{}

func (HuhPrompter) Confirm(_ context.Context, title, description string) (bool, error) {
	var allow bool
	err := huh.NewConfirm().
		Title(title).
		Description(description).
		Affirmative("Allow").
		Negative("Block").
		Value(&allow).
		Run()
	return allow, err
}

// Permissions is the notification permission of this device. A nil prompter
// means the notification capability is missing.
type Permissions struct {
	redis    *redis.Client
	prompter Prompter
}

func NewPermissions(rdb *redis.Client, prompter Prompter) *Permissions {
	return &Permissions{redis: rdb, prompter: prompter}
}

func (p *Permissions) Supported() bool {
	return p.prompter != nil
}

func (p *Permissions) State(ctx context.Context) (models.Permission, error) {
	v, err := p.redis.Get(ctx, permissionKey).Result()
	if errors.Is(err, redis.Nil) {
		return models.PermissionDefault, nil
	}
	if err != nil {
		return "", fmt.Errorf("read permission: %w", err)
	}
	switch perm := models.Permission(v); perm {
	case models.PermissionGranted, models.PermissionDenied:
		return perm, nil
	}
	return models.PermissionDefault, nil
}

// Request prompts only while the permission is still default; a granted or
// denied decision is returned as is.
func (p *Permissions) Request(ctx context.Context) (models.Permission, error) {
	state, err := p.State(ctx)
	if err != nil || state != models.PermissionDefault {
		return state, err
	}
	if p.prompter == nil {
		return models.PermissionDefault, errors.New("notifications are not supported")
	}

	allow, err := p.prompter.Confirm(ctx,
		"Allow booking notifications?",
		"Status changes, reschedules and refunds are pushed to this device.")
	if err != nil {
		return models.PermissionDefault, fmt.Errorf("permission prompt: %w", err)
	}
	state = models.PermissionDenied
	if allow {
		state = models.PermissionGranted
	}
	if err := p.redis.Set(ctx, permissionKey, string(state), 0).Err(); err != nil {
		return state, fmt.Errorf("store permission: %w", err)
	}
	return state, nil
}

// Reset puts the permission back to default, as clearing site settings would.
func (p *Permissions) Reset(ctx context.Context) error {
	return p.redis.Del(ctx, permissionKey).Err()
}
