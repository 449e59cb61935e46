package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/firstserv/chat-platform/internal/auth"
	"github.com/firstserv/chat-platform/internal/model"
	"github.com/firstserv/chat-platform/internal/store"
	"github.com/firstserv/chat-platform/pkg/logger"
)

func newTestServices(t *testing.T) (*UserService, *ConversationService) {
	t.Helper()
	st, err := store.Open(t.TempDir(), logger.NewNop())
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	authenticator := auth.NewAuthenticator("test-secret", time.Minute)
	return NewUserService(st, authenticator, logger.NewNop()),
		NewConversationService(st, logger.NewNop())
}

func signup(t *testing.T, users *UserService, handle string) {
	t.Helper()
	_, err := users.Signup(context.Background(), &model.SignupRequest{
		Name:     handle,
		Password: "hunter22hunter22",
	})
	if err != nil {
		t.Fatalf("Signup(%q) returned error: %v", handle, err)
	}
}

func TestCreateIncludesCreator(t *testing.T) {
	users, convs := newTestServices(t)
	signup(t, users, "alice")
	signup(t, users, "bob")

	conv, err := convs.Create(context.Background(), "alice", &model.CreateConversationRequest{
		Participants: []string{"bob"},
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if !conv.IsParticipant("alice") {
		t.Error("creator is not a participant")
	}
	if !conv.IsParticipant("bob") {
		t.Error("named participant is missing")
	}
	if conv.ID == "" {
		t.Error("conversation has no identifier")
	}
}

func TestCreateRejectsSoloConversation(t *testing.T) {
	users, convs := newTestServices(t)
	signup(t, users, "alice")

	_, err := convs.Create(context.Background(), "alice", &model.CreateConversationRequest{
		Participants: []string{"alice"},
	})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("Create = %v, want ErrInvalidRequest", err)
	}
}

func TestCreateRejectsUnknownParticipant(t *testing.T) {
	users, convs := newTestServices(t)
	signup(t, users, "alice")

	_, err := convs.Create(context.Background(), "alice", &model.CreateConversationRequest{
		Participants: []string{"ghost"},
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Create = %v, want store.ErrNotFound", err)
	}
}

func TestCreateDuplicatePairConflicts(t *testing.T) {
	users, convs := newTestServices(t)
	signup(t, users, "alice")
	signup(t, users, "bob")

	if _, err := convs.Create(context.Background(), "alice", &model.CreateConversationRequest{
		Participants: []string{"bob"},
	}); err != nil {
		t.Fatalf("first Create returned error: %v", err)
	}

	_, err := convs.Create(context.Background(), "bob", &model.CreateConversationRequest{
		Participants: []string{"alice"},
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("duplicate Create = %v, want store.ErrConflict", err)
	}
}

func TestGetEnforcesMembership(t *testing.T) {
	users, convs := newTestServices(t)
	signup(t, users, "alice")
	signup(t, users, "bob")
	signup(t, users, "mallory")

	conv, err := convs.Create(context.Background(), "alice", &model.CreateConversationRequest{
		Participants: []string{"bob"},
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if _, err := convs.Get(context.Background(), "alice", conv.ID); err != nil {
		t.Errorf("participant Get returned error: %v", err)
	}
	if _, err := convs.Get(context.Background(), "mallory", conv.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("outsider Get = %v, want ErrForbidden", err)
	}
	if _, err := convs.Get(context.Background(), "alice", "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("unknown conversation Get = %v, want store.ErrNotFound", err)
	}
}

func TestAuthorize(t *testing.T) {
	users, convs := newTestServices(t)
	signup(t, users, "alice")
	signup(t, users, "bob")
	signup(t, users, "mallory")

	conv, err := convs.Create(context.Background(), "alice", &model.CreateConversationRequest{
		Participants: []string{"bob"},
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if err := convs.Authorize(context.Background(), "bob", conv.ID); err != nil {
		t.Errorf("participant Authorize returned error: %v", err)
	}
	if err := convs.Authorize(context.Background(), "mallory", conv.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("outsider Authorize = %v, want ErrForbidden", err)
	}
	if err := convs.Authorize(context.Background(), "alice", "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("unknown conversation Authorize = %v, want store.ErrNotFound", err)
	}
}

func TestDeleteEnforcesMembership(t *testing.T) {
	users, convs := newTestServices(t)
	signup(t, users, "alice")
	signup(t, users, "bob")
	signup(t, users, "mallory")

	conv, err := convs.Create(context.Background(), "alice", &model.CreateConversationRequest{
		Participants: []string{"bob"},
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if err := convs.Delete(context.Background(), "mallory", conv.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("outsider Delete = %v, want ErrForbidden", err)
	}
	if err := convs.Delete(context.Background(), "alice", conv.ID); err != nil {
		t.Fatalf("participant Delete returned error: %v", err)
	}
	if _, err := convs.Get(context.Background(), "alice", conv.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get after delete = %v, want store.ErrNotFound", err)
	}
}

func TestSignupAndLogin(t *testing.T) {
	users, _ := newTestServices(t)

	user, err := users.Signup(context.Background(), &model.SignupRequest{
		Name:     "alice",
		Password: "hunter22hunter22",
		Bio:      "first user",
	})
	if err != nil {
		t.Fatalf("Signup returned error: %v", err)
	}
	if user.Name != "alice" || user.Bio != "first user" {
		t.Errorf("signup profile = %+v", user)
	}

	if _, err := users.Signup(context.Background(), &model.SignupRequest{
		Name:     "alice",
		Password: "anotherpassword",
	}); !errors.Is(err, store.ErrConflict) {
		t.Errorf("duplicate Signup = %v, want store.ErrConflict", err)
	}

	token, err := users.Login(context.Background(), "alice", "hunter22hunter22")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if token == "" {
		t.Error("Login returned an empty token")
	}

	if _, err := users.Login(context.Background(), "alice", "wrong"); !errors.Is(err, auth.ErrInvalidCredential) {
		t.Errorf("wrong password Login = %v, want auth.ErrInvalidCredential", err)
	}
	if _, err := users.Login(context.Background(), "ghost", "whatever"); !errors.Is(err, auth.ErrInvalidCredential) {
		t.Errorf("unknown handle Login = %v, want auth.ErrInvalidCredential", err)
	}
}
