package storage

import (
	"duo-lab/domain"
	"encoding/json"
	"fmt"
	"strconv"

	stderrors "errors"

	"github.com/dgraph-io/badger/v4"
)

const (
	prefUserKey     = "pref:user"
	prefDarkModeKey = "pref:dark_mode"
)

func themeKey(user domain.Alias) []byte {
	return []byte(fmt.Sprintf("pref:theme:%s", user))
}

// Preferences is the device-local key-value persistence, kept in BadgerDB.
type Preferences struct {
	db *badger.DB
}

func NewPreferences(db *badger.DB) *Preferences {
	return &Preferences{db: db}
}

func (p *Preferences) get(key []byte) ([]byte, bool, error) {
	var val []byte
	err := p.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (p *Preferences) set(key, val []byte) error {
	return p.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, val)
	})
}

func (p *Preferences) del(key []byte) error {
	return p.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

func (p *Preferences) LastUser() (domain.Alias, bool, error) {
	val, ok, err := p.get([]byte(prefUserKey))
	if err != nil || !ok {
		return "", false, err
	}
	user, err := domain.ParseAlias(string(val))
	if err != nil {
		return "", false, err
	}
	return user, true, nil
}

func (p *Preferences) SetLastUser(user domain.Alias) error {
	return p.set([]byte(prefUserKey), []byte(user))
}

func (p *Preferences) ClearLastUser() error {
	return p.del([]byte(prefUserKey))
}

func (p *Preferences) DarkMode() (bool, error) {
	val, ok, err := p.get([]byte(prefDarkModeKey))
	if err != nil || !ok {
		return false, err
	}
	return strconv.ParseBool(string(val))
}

func (p *Preferences) SetDarkMode(dark bool) error {
	return p.set([]byte(prefDarkModeKey), []byte(strconv.FormatBool(dark)))
}

// ThemeColors returns nil when the user never customized their theme.
func (p *Preferences) ThemeColors(user domain.Alias) (*domain.ThemeValues, error) {
	val, ok, err := p.get(themeKey(user))
	if err != nil || !ok {
		return nil, err
	}
	var colors domain.ThemeValues
	if err := json.Unmarshal(val, &colors); err != nil {
		return nil, fmt.Errorf("theme colors of %s: %w", user, err)
	}
	return &colors, nil
}

// SetThemeColors with nil colors goes back to the base theme.
func (p *Preferences) SetThemeColors(user domain.Alias, colors *domain.ThemeValues) error {
	if colors == nil {
		return p.del(themeKey(user))
	}
	val, err := json.Marshal(colors)
	if err != nil {
		return err
	}
	return p.set(themeKey(user), val)
}
