// Package store is the persistence gateway: a narrow interface over a Pebble
// document store for user, conversation, and message documents. It shapes
// queries and keys; ordering and write serialization are owned by the
// dispatcher, not by this package.
package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/firstserv/chat-platform/internal/model"
	"github.com/firstserv/chat-platform/pkg/logger"
	"github.com/firstserv/chat-platform/pkg/metrics"
)

var (
	// ErrNotFound indicates the requested document does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a uniqueness constraint was violated.
	ErrConflict = errors.New("already exists")
	// ErrUnavailable indicates the store itself failed; operations wrapped
	// with it are transient and must not be treated as domain errors.
	ErrUnavailable = errors.New("store unavailable")
)

// seq disambiguates message keys that share the same nanosecond timestamp.
var seq uint64

// Store wraps an open Pebble database.
type Store struct {
	db     *pebble.DB
	logger *logger.Logger

	// userMu guards check-then-insert on the user namespace; convMu does the
	// same for conversation creation (the duplicate-DM check).
	userMu sync.Mutex
	convMu sync.Mutex
}

// Open opens (or creates) a Pebble database at the given path.
func Open(path string, log *logger.Logger) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("%w: opening pebble at %s: %v", ErrUnavailable, path, err)
	}
	log.Info("document store opened", "path", path)
	return &Store{db: db, logger: log}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ready reports whether the store can serve a read round trip.
func (s *Store) Ready() bool {
	_, closer, err := s.db.Get([]byte("meta:ready"))
	if err == nil {
		closer.Close()
	}
	return err == nil || errors.Is(err, pebble.ErrNotFound)
}

// Key layout:
//
//	user:<handle>                  account document
//	conv:<id>:meta                 conversation metadata (no messages)
//	conv:<id>:msg:<nano>-<seq>     message document, keys sort in append order
//	conv:<id>:msgid:<messageID>    message-ID index -> message key
//	dm:<a>|<b>                     unnamed two-party pair guard -> conv id
func userKey(handle string) []byte {
	return []byte("user:" + handle)
}

func convMetaKey(id string) []byte {
	return []byte("conv:" + id + ":meta")
}

func convPrefix(id string) []byte {
	return []byte("conv:" + id + ":")
}

func msgPrefix(id string) []byte {
	return []byte("conv:" + id + ":msg:")
}

func msgKey(convID string, ts time.Time) []byte {
	n := atomic.AddUint64(&seq, 1)
	// Both components are fixed width for the full range of their types so
	// the keys sort bytewise in assignment order.
	return []byte(fmt.Sprintf("conv:%s:msg:%020d-%020d", convID, ts.UTC().UnixNano(), n))
}

func msgIndexKey(convID, messageID string) []byte {
	return []byte("conv:" + convID + ":msgid:" + messageID)
}

func dmKey(participants []string) []byte {
	pair := append([]string(nil), participants...)
	sort.Strings(pair)
	// Handles may contain the separator, so components are escaped to keep
	// distinct pairs on distinct keys.
	for i, p := range pair {
		p = strings.ReplaceAll(p, `\`, `\\`)
		pair[i] = strings.ReplaceAll(p, "|", `\|`)
	}
	return []byte("dm:" + strings.Join(pair, "|"))
}

// prefixUpperBound returns the exclusive upper bound for a prefix scan.
func prefixUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

// convMeta is the persisted conversation document without its message log.
type convMeta struct {
	ID           string    `json:"id"`
	Name         string    `json:"name,omitempty"`
	Participants []string  `json:"participants"`
	CreatedAt    time.Time `json:"created_at"`
}

func (s *Store) get(key []byte, v interface{}) error {
	data, closer, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: get: %v", ErrUnavailable, err)
	}
	defer closer.Close()
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: decoding %s: %v", ErrUnavailable, key, err)
	}
	return nil
}

func (s *Store) set(key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: encoding %s: %v", ErrUnavailable, key, err)
	}
	if err := s.db.Set(key, data, pebble.Sync); err != nil {
		return fmt.Errorf("%w: set: %v", ErrUnavailable, err)
	}
	return nil
}

func observe(op string, start time.Time) {
	metrics.StoreOpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// CreateUser inserts a new account document. The handle is unique.
func (s *Store) CreateUser(rec *model.UserRecord) error {
	defer observe("create_user", time.Now())

	s.userMu.Lock()
	defer s.userMu.Unlock()

	var existing model.UserRecord
	switch err := s.get(userKey(rec.Name), &existing); {
	case err == nil:
		return ErrConflict
	case !errors.Is(err, ErrNotFound):
		return err
	}
	return s.set(userKey(rec.Name), rec)
}

// GetUser fetches an account document by handle.
func (s *Store) GetUser(handle string) (*model.UserRecord, error) {
	defer observe("get_user", time.Now())

	var rec model.UserRecord
	if err := s.get(userKey(handle), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListUsers returns every account document.
func (s *Store) ListUsers() ([]model.UserRecord, error) {
	defer observe("list_users", time.Now())

	prefix := []byte("user:")
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: iterator: %v", ErrUnavailable, err)
	}
	defer iter.Close()

	var users []model.UserRecord
	for iter.First(); iter.Valid(); iter.Next() {
		var rec model.UserRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			s.logger.Warn("skipping undecodable user document", "key", string(iter.Key()), "error", err)
			continue
		}
		users = append(users, rec)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("%w: iteration: %v", ErrUnavailable, err)
	}
	return users, nil
}

// UpdateUserBio replaces the bio on an account document.
func (s *Store) UpdateUserBio(handle, bio string) (*model.UserRecord, error) {
	return s.updateUser(handle, func(rec *model.UserRecord) { rec.Bio = bio })
}

// UpdateUserAvatar replaces the avatar reference on an account document.
func (s *Store) UpdateUserAvatar(handle, avatarURL string) (*model.UserRecord, error) {
	return s.updateUser(handle, func(rec *model.UserRecord) { rec.AvatarURL = avatarURL })
}

func (s *Store) updateUser(handle string, mutate func(*model.UserRecord)) (*model.UserRecord, error) {
	defer observe("update_user", time.Now())

	s.userMu.Lock()
	defer s.userMu.Unlock()

	var rec model.UserRecord
	if err := s.get(userKey(handle), &rec); err != nil {
		return nil, err
	}
	mutate(&rec)
	if err := s.set(userKey(handle), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// CreateConversation persists a new conversation document. An unnamed
// conversation between the same two participants may exist at most once.
func (s *Store) CreateConversation(conv *model.Conversation) error {
	defer observe("create_conversation", time.Now())

	s.convMu.Lock()
	defer s.convMu.Unlock()

	guarded := len(conv.Participants) == 2 && conv.Name == ""
	if guarded {
		var existingID string
		switch err := s.get(dmKey(conv.Participants), &existingID); {
		case err == nil:
			return ErrConflict
		case !errors.Is(err, ErrNotFound):
			return err
		}
	}

	meta := convMeta{
		ID:           conv.ID,
		Name:         conv.Name,
		Participants: conv.Participants,
		CreatedAt:    conv.CreatedAt,
	}
	metaData, err := json.Marshal(&meta)
	if err != nil {
		return fmt.Errorf("%w: encoding conversation: %v", ErrUnavailable, err)
	}

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(convMetaKey(conv.ID), metaData, nil); err != nil {
		return fmt.Errorf("%w: batch set: %v", ErrUnavailable, err)
	}
	if guarded {
		idData, _ := json.Marshal(conv.ID)
		if err := batch.Set(dmKey(conv.Participants), idData, nil); err != nil {
			return fmt.Errorf("%w: batch set: %v", ErrUnavailable, err)
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrUnavailable, err)
	}
	return nil
}

// FindConversation fetches a conversation with its full ordered message log.
func (s *Store) FindConversation(id string) (*model.Conversation, error) {
	defer observe("find_conversation", time.Now())

	var meta convMeta
	if err := s.get(convMetaKey(id), &meta); err != nil {
		return nil, err
	}

	messages, err := s.ListMessages(id)
	if err != nil {
		return nil, err
	}

	return &model.Conversation{
		ID:           meta.ID,
		Name:         meta.Name,
		Participants: meta.Participants,
		Messages:     messages,
		CreatedAt:    meta.CreatedAt,
	}, nil
}

// ListParticipants returns the immutable participant set of a conversation.
func (s *Store) ListParticipants(id string) ([]string, error) {
	defer observe("list_participants", time.Now())

	var meta convMeta
	if err := s.get(convMetaKey(id), &meta); err != nil {
		return nil, err
	}
	return meta.Participants, nil
}

// ListConversationsFor returns conversation metadata (no messages) for every
// conversation the handle participates in.
func (s *Store) ListConversationsFor(handle string) ([]model.Conversation, error) {
	defer observe("list_conversations", time.Now())

	prefix := []byte("conv:")
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: iterator: %v", ErrUnavailable, err)
	}
	defer iter.Close()

	var convs []model.Conversation
	for iter.First(); iter.Valid(); iter.Next() {
		if !bytes.HasSuffix(iter.Key(), []byte(":meta")) {
			continue
		}
		var meta convMeta
		if err := json.Unmarshal(iter.Value(), &meta); err != nil {
			s.logger.Warn("skipping undecodable conversation document", "key", string(iter.Key()), "error", err)
			continue
		}
		for _, p := range meta.Participants {
			if p == handle {
				convs = append(convs, model.Conversation{
					ID:           meta.ID,
					Name:         meta.Name,
					Participants: meta.Participants,
					Messages:     []model.Message{},
					CreatedAt:    meta.CreatedAt,
				})
				break
			}
		}
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("%w: iteration: %v", ErrUnavailable, err)
	}
	return convs, nil
}

// DeleteConversation removes the conversation and all its messages in one
// atomic batch.
func (s *Store) DeleteConversation(id string) error {
	defer observe("delete_conversation", time.Now())

	var meta convMeta
	if err := s.get(convMetaKey(id), &meta); err != nil {
		return err
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	prefix := convPrefix(id)
	if err := batch.DeleteRange(prefix, prefixUpperBound(prefix), nil); err != nil {
		return fmt.Errorf("%w: delete range: %v", ErrUnavailable, err)
	}
	if len(meta.Participants) == 2 && meta.Name == "" {
		if err := batch.Delete(dmKey(meta.Participants), nil); err != nil {
			return fmt.Errorf("%w: batch delete: %v", ErrUnavailable, err)
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrUnavailable, err)
	}
	return nil
}

// ListMessages returns a conversation's messages in append order.
func (s *Store) ListMessages(convID string) ([]model.Message, error) {
	defer observe("list_messages", time.Now())

	prefix := msgPrefix(convID)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: iterator: %v", ErrUnavailable, err)
	}
	defer iter.Close()

	messages := []model.Message{}
	for iter.First(); iter.Valid(); iter.Next() {
		var msg model.Message
		if err := json.Unmarshal(iter.Value(), &msg); err != nil {
			s.logger.Warn("skipping undecodable message document", "key", string(iter.Key()), "error", err)
			continue
		}
		messages = append(messages, msg)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("%w: iteration: %v", ErrUnavailable, err)
	}
	return messages, nil
}

// AppendMessage appends one finalized message to a conversation's log. The
// write is atomic: the message document and its ID index land in one batch,
// and nothing is written when the conversation does not exist.
func (s *Store) AppendMessage(convID string, msg *model.Message) error {
	defer observe("append_message", time.Now())

	var meta convMeta
	if err := s.get(convMetaKey(convID), &meta); err != nil {
		return err
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: encoding message: %v", ErrUnavailable, err)
	}

	key := msgKey(convID, msg.Timestamp)

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(key, data, nil); err != nil {
		return fmt.Errorf("%w: batch set: %v", ErrUnavailable, err)
	}
	if err := batch.Set(msgIndexKey(convID, msg.ID), key, nil); err != nil {
		return fmt.Errorf("%w: batch set: %v", ErrUnavailable, err)
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrUnavailable, err)
	}
	return nil
}

// GetMessage fetches a single message by its identifier.
func (s *Store) GetMessage(convID, messageID string) (*model.Message, error) {
	defer observe("get_message", time.Now())

	msg, _, err := s.getMessageByIndex(convID, messageID)
	return msg, err
}

func (s *Store) getMessageByIndex(convID, messageID string) (*model.Message, []byte, error) {
	key, closer, err := s.db.Get(msgIndexKey(convID, messageID))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("%w: get: %v", ErrUnavailable, err)
	}
	docKey := append([]byte(nil), key...)
	closer.Close()

	var msg model.Message
	if err := s.get(docKey, &msg); err != nil {
		return nil, nil, err
	}
	return &msg, docKey, nil
}

// IncrementReaction bumps the counter for symbol on a message and returns
// the updated document. Callers serialize reaction updates per conversation;
// this method is the single write contract so no caller ever does its own
// read-then-write on the document.
func (s *Store) IncrementReaction(convID, messageID, symbol string) (*model.Message, error) {
	defer observe("increment_reaction", time.Now())

	msg, key, err := s.getMessageByIndex(convID, messageID)
	if err != nil {
		return nil, err
	}

	if msg.Reactions == nil {
		msg.Reactions = map[string]int{}
	}
	msg.Reactions[symbol]++

	if err := s.set(key, msg); err != nil {
		return nil, err
	}
	return msg, nil
}
