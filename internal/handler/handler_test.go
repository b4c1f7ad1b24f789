package handler

import (
	"testing"

	"github.com/examlock/examlock-backend/internal/model"
	"github.com/google/uuid"
)

func TestUserPayloadCarriesPrimaryRole(t *testing.T) {
	u := &model.User{
		ID:    uuid.New(),
		Email: "proctor@example.com",
		Roles: []model.Role{model.RoleAssistant, model.RoleInstructor},
	}

	payload := userPayload(u)

	if payload["user"] != u {
		t.Fatal("payload must embed the user")
	}
	if payload["primary_role"] != model.RoleInstructor {
		t.Errorf("primary_role = %v, want %s", payload["primary_role"], model.RoleInstructor)
	}
}

func TestUserPayloadDefaultsToGuest(t *testing.T) {
	payload := userPayload(&model.User{ID: uuid.New()})

	if payload["primary_role"] != model.RoleGuest {
		t.Errorf("primary_role = %v, want %s", payload["primary_role"], model.RoleGuest)
	}
}
