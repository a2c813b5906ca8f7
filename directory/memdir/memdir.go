// Package memdir is an in-process goCred.Directory for tests, examples and
// single-instance tools. Nothing is persisted.
package memdir

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	goCred "github.com/MrEthical07/goCred"
)

// Directory stores credentials in memory. It is safe for concurrent use.
type Directory struct {
	mu      sync.RWMutex
	bySubj  map[string]goCred.Credential
	byEmail map[string]string
	now     func() time.Time
}

func New(creds ...goCred.Credential) *Directory {
	d := &Directory{
		bySubj:  make(map[string]goCred.Credential),
		byEmail: make(map[string]string),
		now:     time.Now,
	}
	for _, c := range creds {
		_ = d.Put(c)
	}
	return d
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Put inserts or replaces c. Emails are unique, compared case-insensitively.
func (d *Directory) Put(c goCred.Credential) error {
	if strings.TrimSpace(c.Subject) == "" {
		return errors.New("credential subject is required")
	}
	email := normalizeEmail(c.Email)

	d.mu.Lock()
	defer d.mu.Unlock()

	if email != "" {
		if owner, ok := d.byEmail[email]; ok && owner != c.Subject {
			return errors.New("email already registered")
		}
	}
	if prev, ok := d.bySubj[c.Subject]; ok {
		delete(d.byEmail, normalizeEmail(prev.Email))
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = d.now()
	}
	c.TOTPSecret = append([]byte(nil), c.TOTPSecret...)
	d.bySubj[c.Subject] = c
	if email != "" {
		d.byEmail[email] = c.Subject
	}
	return nil
}

// Delete removes subject. Sessions for it fail refresh afterwards.
func (d *Directory) Delete(subject string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.bySubj[subject]; ok {
		delete(d.byEmail, normalizeEmail(c.Email))
		delete(d.bySubj, subject)
	}
}

func (d *Directory) FindBySubject(_ context.Context, subject string) (goCred.Credential, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.bySubj[subject]
	if !ok {
		return goCred.Credential{}, goCred.ErrSubjectNotFound
	}
	c.TOTPSecret = append([]byte(nil), c.TOTPSecret...)
	return c, nil
}

func (d *Directory) FindByEmail(_ context.Context, email string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	subject, ok := d.byEmail[normalizeEmail(email)]
	if !ok {
		return "", goCred.ErrSubjectNotFound
	}
	return subject, nil
}

func (d *Directory) UpdateCredential(_ context.Context, subject, passwordHash string) error {
	if passwordHash == "" {
		return errors.New("password hash is required")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.bySubj[subject]
	if !ok {
		return goCred.ErrSubjectNotFound
	}
	c.PasswordHash = passwordHash
	c.UpdatedAt = d.now()
	d.bySubj[subject] = c
	return nil
}

// Len reports the number of stored credentials.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.bySubj)
}
