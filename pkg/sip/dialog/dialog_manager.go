package dialog

import "sync"

// DialogManager is the stack's thread-safe registry of active dialogs,
// keyed by their RFC 3261 §12 identity (Call-ID + tags).
type DialogManager struct {
	mu      sync.RWMutex
	dialogs map[DialogKey]*Dialog
}

// NewDialogManager creates an empty registry.
func NewDialogManager() *DialogManager {
	return &DialogManager{
		dialogs: make(map[DialogKey]*Dialog),
	}
}

// Add registers d under its current key. Returns ErrDialogExists if the
// key is already taken.
func (dm *DialogManager) Add(d *Dialog) error {
	key := d.Key()

	dm.mu.Lock()
	defer dm.mu.Unlock()

	if _, exists := dm.dialogs[key]; exists {
		return ErrDialogExists
	}
	dm.dialogs[key] = d
	return nil
}

// Get looks up a dialog by key.
func (dm *DialogManager) Get(key DialogKey) (*Dialog, bool) {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	d, ok := dm.dialogs[key]
	return d, ok
}

// Remove drops a dialog from the registry.
func (dm *DialogManager) Remove(key DialogKey) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	delete(dm.dialogs, key)
}

// UpdateKey moves a dialog from oldKey to newKey, used once a UAC dialog
// learns the remote tag from the first response and its identity becomes
// final. Returns ErrDialogNotFound if oldKey isn't registered.
func (dm *DialogManager) UpdateKey(oldKey, newKey DialogKey) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	d, ok := dm.dialogs[oldKey]
	if !ok {
		return ErrDialogNotFound
	}
	delete(dm.dialogs, oldKey)
	dm.dialogs[newKey] = d
	return nil
}

// GetAll returns a snapshot of every currently registered dialog.
func (dm *DialogManager) GetAll() []*Dialog {
	dm.mu.RLock()
	defer dm.mu.RUnlock()

	result := make([]*Dialog, 0, len(dm.dialogs))
	for _, d := range dm.dialogs {
		result = append(result, d)
	}
	return result
}

// Clear drops every dialog from the registry.
func (dm *DialogManager) Clear() {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	dm.dialogs = make(map[DialogKey]*Dialog)
}
