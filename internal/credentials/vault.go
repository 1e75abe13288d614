package credentials

import (
	"context"
	"errors"
	"strconv"

	"github.com/Annany2002/odkx-manager/internal/core"
	"github.com/Annany2002/odkx-manager/internal/transport"
)

// Vault decides where credentials live. Remembered credentials go to the persistent store,
// others to the session store. Reads prefer the persistent store.
type Vault struct {
	persistent Store
	session    Store
}

// NewVault creates a vault. persistent may be nil, in which case "remember" falls back to
// the session store.
func NewVault(persistent, session Store) *Vault {
	if session == nil {
		session = NewMemoryStore()
	}
	return &Vault{persistent: persistent, session: session}
}

func (v *Vault) stores() []Store {
	if v.persistent == nil {
		return []Store{v.session}
	}
	return []Store{v.persistent, v.session}
}

// Save stores creds. Any copy in the other store is removed so that reads never mix sources.
func (v *Vault) Save(ctx context.Context, creds transport.Credentials, remember bool) error {
	target, other := v.session, v.persistent
	if remember && v.persistent != nil {
		target, other = v.persistent, v.session
	}
	if other != nil {
		if err := removeCredentials(ctx, other); err != nil {
			return err
		}
	}
	if err := target.Set(ctx, KeyServerURL, creds.ServerURL); err != nil {
		return err
	}
	return target.Set(ctx, KeyToken, creds.Token)
}

// Current returns the stored credentials. It implements transport.CredentialSource.
func (v *Vault) Current() (transport.Credentials, bool) {
	ctx := context.Background()
	for _, store := range v.stores() {
		serverURL, ok, err := store.Get(ctx, KeyServerURL)
		if err != nil {
			customLog.Warnf("Credentials: failed to read server url: %v", err)
			continue
		}
		if !ok || serverURL == "" {
			continue
		}
		token, _, err := store.Get(ctx, KeyToken)
		if err != nil {
			customLog.Warnf("Credentials: failed to read token: %v", err)
			continue
		}
		return transport.Credentials{ServerURL: serverURL, Token: token}, true
	}
	return transport.Credentials{}, false
}

// Clear removes the server url and token from both stores. Settings are kept.
func (v *Vault) Clear(ctx context.Context) error {
	var errs []error
	for _, store := range v.stores() {
		errs = append(errs, removeCredentials(ctx, store))
	}
	return errors.Join(errs...)
}

// FetchLimit returns the stored row page size, or the default.
func (v *Vault) FetchLimit(ctx context.Context) int {
	for _, store := range v.stores() {
		raw, ok, err := store.Get(ctx, KeyFetchLimit)
		if err != nil || !ok {
			continue
		}
		limit, err := strconv.Atoi(raw)
		if err != nil || core.ValidateFetchLimit(limit) != nil {
			customLog.Warnf("Credentials: ignoring invalid stored fetch limit '%s'", raw)
			continue
		}
		return limit
	}
	return core.DefaultFetchLimit
}

// SetFetchLimit validates and stores the row page size, persistently when possible.
func (v *Vault) SetFetchLimit(ctx context.Context, limit int) error {
	if err := core.ValidateFetchLimit(limit); err != nil {
		return err
	}
	return v.stores()[0].Set(ctx, KeyFetchLimit, strconv.Itoa(limit))
}

func removeCredentials(ctx context.Context, store Store) error {
	if err := store.Remove(ctx, KeyServerURL); err != nil {
		return err
	}
	return store.Remove(ctx, KeyToken)
}
