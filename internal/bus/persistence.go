package bus

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/mbright/conductor/pkg/models"
)

// persistence writes one file per message, named by message ID, and picks
// up message files created by other processes through a directory watcher.
type persistence struct {
	dir     string
	seen    map[string]bool
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// EnablePersistence turns on message persistence under dir and starts a
// watcher that delivers message files written by other processes. If the
// watcher cannot be created the bus still persists messages; pickup then
// only happens on Register replay.
func (b *Bus) EnablePersistence(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create message directory: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.persist != nil {
		return fmt.Errorf("persistence already enabled")
	}

	p := &persistence{
		dir:  dir,
		seen: make(map[string]bool),
		done: make(chan struct{}),
	}
	b.persist = p

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		// Continue without watcher - replay on Register still works
		return nil
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil
	}
	p.watcher = watcher

	go b.watchMessages(p)

	return nil
}

// watchMessages delivers message files as they appear in the directory.
func (b *Bus) watchMessages(p *persistence) {
	for {
		select {
		case <-p.done:
			return
		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Create == 0 && event.Op&fsnotify.Write == 0 {
				continue
			}
			if !strings.HasSuffix(event.Name, ".json") {
				continue
			}
			msg, err := readMessage(event.Name)
			if err != nil {
				continue
			}
			b.mu.Lock()
			if !p.seen[msg.ID] {
				p.seen[msg.ID] = true
				b.deliverLocked(*msg)
			}
			b.mu.Unlock()
		case <-p.watcher.Errors:
			// Ignore errors, keep watching
		}
	}
}

// write persists one message as {dir}/{message_id}.json.
func (p *persistence) write(msg models.AgentMessage) error {
	data, err := json.MarshalIndent(msg, "", "  ")
	if err != nil {
		return err
	}
	p.seen[msg.ID] = true
	return os.WriteFile(filepath.Join(p.dir, msg.ID+".json"), data, 0644)
}

// replay returns persisted messages addressed to the agent (directly or by
// broadcast) that have not been delivered on this bus yet.
func (p *persistence) replay(agentID string) []models.AgentMessage {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return nil
	}

	var msgs []models.AgentMessage
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		msg, err := readMessage(filepath.Join(p.dir, e.Name()))
		if err != nil {
			continue
		}
		if p.seen[msg.ID] {
			continue
		}
		// Only directly-addressed messages survive a restart; broadcasts
		// are delivered live to the agents known at publish time.
		if msg.To != agentID {
			continue
		}
		p.seen[msg.ID] = true
		msgs = append(msgs, *msg)
	}
	return msgs
}

// close stops the watcher.
func (p *persistence) close() error {
	if p.watcher != nil {
		close(p.done)
		return p.watcher.Close()
	}
	return nil
}

// readMessage reads and parses one persisted message file.
func readMessage(path string) (*models.AgentMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	msg := &models.AgentMessage{}
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, err
	}
	if msg.ID == "" {
		return nil, fmt.Errorf("message file %s has no id", path)
	}
	return msg, nil
}
