// SPDX-License-Identifier: MPL-2.0

package lifecycle

import (
	"fmt"
	"time"

	"github.com/pelletier/go-toml/v2"
)

type (
	// JournalEntry is one recorded operation outcome.
	JournalEntry struct {
		Operation OpKind    `toml:"operation"`
		ModuleID  string    `toml:"module_id"`
		Version   string    `toml:"version,omitempty"`
		Success   bool      `toml:"success"`
		Errors    []string  `toml:"errors,omitempty"`
		Warnings  []string  `toml:"warnings,omitempty"`
		Timestamp time.Time `toml:"timestamp"`
	}

	journalFile struct {
		Entries []JournalEntry `toml:"entry,omitempty"`
	}
)

// appendJournal records an operation outcome in the TOML history file. The
// journal survives restarts; a missing or empty file starts a new history.
func (m *Manager) appendJournal(res *Result) error {
	if m.cfg.JournalPath == "" {
		return nil
	}

	journal, err := m.readJournal()
	if err != nil {
		return err
	}

	journal.Entries = append(journal.Entries, JournalEntry{
		Operation: res.Operation,
		ModuleID:  res.ModuleID,
		Version:   res.Version.String(),
		Success:   res.Success,
		Errors:    res.Errors,
		Warnings:  res.Warnings,
		Timestamp: time.Now(),
	})

	data, err := toml.Marshal(journal)
	if err != nil {
		return fmt.Errorf("encode journal: %w", err)
	}
	return m.files.Write(m.cfg.JournalPath, data)
}

func (m *Manager) readJournal() (*journalFile, error) {
	journal := &journalFile{}
	if m.cfg.JournalPath == "" {
		return journal, nil
	}

	exists, err := m.files.Exists(m.cfg.JournalPath)
	if err != nil {
		return nil, err
	}
	if !exists {
		return journal, nil
	}

	data, err := m.files.Read(m.cfg.JournalPath)
	if err != nil {
		return nil, err
	}
	if err := toml.Unmarshal(data, journal); err != nil {
		return nil, fmt.Errorf("decode journal: %w", err)
	}
	return journal, nil
}

// History returns the journaled operation outcomes, oldest first.
func (m *Manager) History() ([]JournalEntry, error) {
	journal, err := m.readJournal()
	if err != nil {
		return nil, err
	}
	return journal.Entries, nil
}
