package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/santridigital/kreator-gateway/internal/shared/storage"
)

// CreditMode determines how a credential's display credit is initialized.
type CreditMode string

const (
	// ModeFree displays as unlimited; deductions are no-ops.
	ModeFree CreditMode = "free"
	// ModeFixed1000 starts with a fixed 1000 credits.
	ModeFixed1000 CreditMode = "fixed_1000"
	// ModeCustom derives the starting credit from an admin code.
	ModeCustom CreditMode = "custom"
)

// adminCodeCredits maps uppercased admin codes to starting display credit.
// An unknown code yields zero credit rather than an error.
var adminCodeCredits = map[string]int{
	"SANTRI2K":  2000,
	"SANTRI3K":  3000,
	"SANTRI4K":  4000,
	"SANTRI5K":  5000,
	"SANTRI6K":  6000,
	"SANTRI7K":  7000,
	"SANTRI8K":  8000,
	"SANTRI9K":  9000,
	"SANTRI10K": 10000,
}

// InitialCredit computes the starting display credit for a mode and code.
func InitialCredit(mode CreditMode, adminCode string) int {
	switch mode {
	case ModeFixed1000:
		return 1000
	case ModeCustom:
		if adminCode == "" {
			return 0
		}
		return adminCodeCredits[strings.ToUpper(adminCode)]
	default:
		return 0
	}
}

// Credential is one user-held provider credential plus its display-only
// credit counter. The credit is advisory bookkeeping, never an enforced
// quota gate.
type Credential struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Key           string     `json:"key"`
	IsActive      bool       `json:"is_active"`
	Mode          CreditMode `json:"credit_mode"`
	AdminCode     string     `json:"admin_code,omitempty"`
	InitialCredit int        `json:"initial_credit"`
	CurrentCredit int        `json:"current_credit"`
}

// HasKey reports whether the credential carries a usable secret.
func (c Credential) HasKey() bool {
	return strings.TrimSpace(c.Key) != ""
}

// SaveInput is the user-editable subset of a credential.
type SaveInput struct {
	Name      string     `json:"name"`
	Key       string     `json:"key"`
	Mode      CreditMode `json:"credit_mode"`
	AdminCode string     `json:"admin_code,omitempty"`
}

// storedCredential mirrors Credential with optional credit fields so that
// documents written before the credit system existed still load.
type storedCredential struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Key           string     `json:"key"`
	IsActive      bool       `json:"is_active"`
	Mode          CreditMode `json:"credit_mode"`
	AdminCode     string     `json:"admin_code,omitempty"`
	InitialCredit *int       `json:"initial_credit"`
	CurrentCredit *int       `json:"current_credit"`
}

const (
	userCredentialsKey   = "credentials:user"
	serverCredentialsKey = "credentials:server"
)

// ErrNotFound is returned when a credential id does not exist.
var ErrNotFound = errors.New("credential not found")

// Store persists the credential lists through the storage port and enforces
// the single-active invariant. A store-level mutex serializes every
// read-modify-write cycle, so concurrent generations cannot interleave
// credit deductions.
type Store struct {
	mu             sync.Mutex
	storage        storage.Store
	serverDefaults []Credential
}

// NewStore creates a credential store. serverKeys seeds the secrets of the
// required default server-credential entries; missing entries get an empty
// secret.
func NewStore(st storage.Store, serverKeys []string) *Store {
	defaults := make([]Credential, 5)
	for i := range defaults {
		key := ""
		if i < len(serverKeys) {
			key = serverKeys[i]
		}
		defaults[i] = Credential{
			ID:       fmt.Sprintf("server-%d", i+1),
			Name:     fmt.Sprintf("Server %d", i+1),
			Key:      key,
			IsActive: i == 0,
			Mode:     ModeFree,
		}
	}
	return &Store{storage: st, serverDefaults: defaults}
}

func (s *Store) load(ctx context.Context) ([]Credential, error) {
	doc, err := s.storage.Get(ctx, userCredentialsKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}

	var stored []storedCredential
	if err := json.Unmarshal([]byte(doc), &stored); err != nil {
		log.Error().Err(err).Msg("credential document is corrupt, starting empty")
		return nil, nil
	}

	creds := make([]Credential, 0, len(stored))
	for _, k := range stored {
		cred := Credential{
			ID:        k.ID,
			Name:      k.Name,
			Key:       k.Key,
			IsActive:  k.IsActive,
			Mode:      k.Mode,
			AdminCode: k.AdminCode,
		}
		if cred.ID == "" {
			cred.ID = uuid.NewString()
		}
		if cred.Name == "" {
			cred.Name = "Unnamed Credit"
		}
		// Anything other than the two explicit paid modes falls back to free.
		if cred.Mode != ModeFixed1000 && cred.Mode != ModeCustom {
			cred.Mode = ModeFree
		}
		if k.InitialCredit != nil {
			cred.InitialCredit = *k.InitialCredit
		} else {
			cred.InitialCredit = InitialCredit(cred.Mode, cred.AdminCode)
		}
		if k.CurrentCredit != nil {
			cred.CurrentCredit = *k.CurrentCredit
		} else {
			cred.CurrentCredit = cred.InitialCredit
		}
		creds = append(creds, cred)
	}
	return creds, nil
}

func (s *Store) persist(ctx context.Context, creds []Credential) error {
	doc, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("failed to serialize credentials: %w", err)
	}
	if err := s.storage.Set(ctx, userCredentialsKey, string(doc)); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	return nil
}

// applyActive re-derives the active flag: the manually active credential
// with a non-empty secret wins, otherwise the first credential with a
// non-empty secret, otherwise none. Returns whether any flag changed.
func applyActive(creds []Credential) bool {
	activeID := ""
	for _, k := range creds {
		if k.IsActive && k.HasKey() {
			activeID = k.ID
			break
		}
	}
	if activeID == "" {
		for _, k := range creds {
			if k.HasKey() {
				activeID = k.ID
				break
			}
		}
	}

	changed := false
	for i := range creds {
		want := activeID != "" && creds[i].ID == activeID
		if creds[i].IsActive != want {
			creds[i].IsActive = want
			changed = true
		}
	}
	return changed
}

// process re-derives the active flag and always persists, mirroring the
// write-on-read behavior the UI depends on.
func (s *Store) process(ctx context.Context, creds []Credential) ([]Credential, error) {
	applyActive(creds)
	if err := s.persist(ctx, creds); err != nil {
		return nil, err
	}
	return creds, nil
}

// List returns all credentials in insertion order with the single-active
// invariant re-derived and persisted.
func (s *Store) List(ctx context.Context) ([]Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	creds, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return s.process(ctx, creds)
}

// Save creates a credential, or replaces name/key/mode/code when idToUpdate
// is given. An update fully resets the credit counters to the new mode's
// initial value. Returns the updated list.
func (s *Store) Save(ctx context.Context, in SaveInput, idToUpdate string) ([]Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	creds, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	adminCode := ""
	if in.Mode == ModeCustom {
		adminCode = in.AdminCode
	}
	initial := InitialCredit(in.Mode, in.AdminCode)

	if idToUpdate != "" {
		found := false
		for i := range creds {
			if creds[i].ID != idToUpdate {
				continue
			}
			creds[i].Name = in.Name
			creds[i].Key = in.Key
			creds[i].Mode = in.Mode
			creds[i].AdminCode = adminCode
			creds[i].InitialCredit = initial
			creds[i].CurrentCredit = initial
			found = true
			break
		}
		if !found {
			return nil, ErrNotFound
		}
	} else {
		creds = append(creds, Credential{
			ID:            uuid.NewString(),
			Name:          in.Name,
			Key:           in.Key,
			IsActive:      false,
			Mode:          in.Mode,
			AdminCode:     adminCode,
			InitialCredit: initial,
			CurrentCredit: initial,
		})
	}

	return s.process(ctx, creds)
}

// Delete removes a credential and re-derives the active flag.
func (s *Store) Delete(ctx context.Context, id string) ([]Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	creds, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	kept := creds[:0]
	for _, k := range creds {
		if k.ID != id {
			kept = append(kept, k)
		}
	}
	return s.process(ctx, kept)
}

// SetActive marks the given credential active, provided it has a non-empty
// secret. Activating an invalid or unknown credential is a non-fatal no-op
// that only logs a warning.
func (s *Store) SetActive(ctx context.Context, id string) ([]Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	creds, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	var target *Credential
	for i := range creds {
		if creds[i].ID == id {
			target = &creds[i]
			break
		}
	}

	if target != nil && target.HasKey() {
		for i := range creds {
			creds[i].IsActive = creds[i].ID == id
		}
	} else if target != nil {
		log.Warn().Str("credential", target.Name).Msg("attempted to activate a credit without a key")
		target.IsActive = false
	} else {
		log.Warn().Str("credential_id", id).Msg("attempted to activate a non-existent credit")
	}

	return s.process(ctx, creds)
}

// Active returns the single active credential with a usable secret, or nil.
func (s *Store) Active(ctx context.Context) (*Credential, error) {
	creds, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, k := range creds {
		if k.IsActive && k.HasKey() {
			cred := k
			return &cred, nil
		}
	}
	return nil, nil
}

// DeductCredit decrements a credential's display credit by cost, floored at
// zero. Free-mode credentials and non-positive costs are no-ops. The change
// is persisted immediately.
func (s *Store) DeductCredit(ctx context.Context, id string, cost int) error {
	if cost <= 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	creds, err := s.load(ctx)
	if err != nil {
		return err
	}

	for i := range creds {
		if creds[i].ID != id || creds[i].Mode == ModeFree {
			continue
		}
		creds[i].CurrentCredit -= cost
		if creds[i].CurrentCredit < 0 {
			creds[i].CurrentCredit = 0
		}
	}

	return s.persist(ctx, creds)
}

// ServerCredentials returns the supporting-AI credential list. The required
// default entries are always present: missing ones are re-seeded on read,
// and the configured secret always wins over whatever the stored document
// carries, so key rotation only needs a config change. Stored active flags
// are kept.
func (s *Store) ServerCredentials(ctx context.Context) ([]Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var creds []Credential
	doc, err := s.storage.Get(ctx, serverCredentialsKey)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("failed to load server credentials: %w", err)
	}
	if err == nil {
		if err := json.Unmarshal([]byte(doc), &creds); err != nil {
			log.Error().Err(err).Msg("server credential document is corrupt, re-seeding")
			creds = nil
		}
	}

	changed := false
	for _, def := range s.serverDefaults {
		present := false
		for i := range creds {
			if creds[i].ID == def.ID {
				present = true
				if creds[i].Key != def.Key {
					creds[i].Key = def.Key
					changed = true
				}
				break
			}
		}
		if !present {
			creds = append(creds, def)
			changed = true
		}
	}

	if changed {
		out, err := json.Marshal(creds)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize server credentials: %w", err)
		}
		if err := s.storage.Set(ctx, serverCredentialsKey, string(out)); err != nil {
			return nil, fmt.Errorf("failed to save server credentials: %w", err)
		}
	}

	return creds, nil
}

// ActiveServerKey returns the secret of the active server credential, or
// the first one with a secret, or empty.
func (s *Store) ActiveServerKey(ctx context.Context) (string, error) {
	creds, err := s.ServerCredentials(ctx)
	if err != nil {
		return "", err
	}
	for _, k := range creds {
		if k.IsActive && k.HasKey() {
			return k.Key, nil
		}
	}
	for _, k := range creds {
		if k.HasKey() {
			return k.Key, nil
		}
	}
	return "", nil
}
