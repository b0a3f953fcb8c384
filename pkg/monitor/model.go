// Package monitor implements a live terminal dashboard of the care log:
// the visible events, the pending queue, the authoritative counter, the
// network mode and the outcome of the last sync.
package monitor

import (
	"context"
	"sort"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/marcus/carelog/internal/models"
	clsync "github.com/marcus/carelog/internal/sync"
)

// Config tunes a Model.
type Config struct {
	Interval time.Duration
	Version  string
	Options  clsync.Options
	// AfterSync runs after every sync started from the monitor.
	AfterSync func(models.SyncResult, error)
}

// Model is the bubbletea model for the monitor.
type Model struct {
	store  Store
	syncer Syncer
	cfg    Config

	keys    keyMap
	help    help.Model
	spinner spinner.Model

	Width  int
	Height int

	Events    []models.Event
	Pending   map[string]bool
	Names     map[string]string
	Conflicts []models.ConflictRecord
	Status    clsync.Status
	LoadErr   error

	Syncing    bool
	LastResult *models.SyncResult
	LastErr    error
	LastSync   time.Time

	StatusMessage string
	StatusIsError bool
}

// NewModel creates a monitor over store and syncer.
func NewModel(store Store, syncer Syncer, cfg Config) Model {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = titleStyle
	return Model{
		store:   store,
		syncer:  syncer,
		cfg:     cfg,
		keys:    defaultKeys(),
		help:    help.New(),
		spinner: sp,
		Pending: map[string]bool{},
		Names:   map[string]string{},
	}
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.fetchData(), m.scheduleTick())
}

func (m Model) scheduleTick() tea.Cmd {
	return tea.Tick(m.cfg.Interval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func clearStatusAfter(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg { return ClearStatusMsg{} })
}

// fetchData reads a fresh snapshot from the store.
func (m Model) fetchData() tea.Cmd {
	store, syncer := m.store, m.syncer
	return func() tea.Msg {
		var msg RefreshDataMsg
		events, err := store.Events()
		if err != nil {
			msg.Err = err
			return msg
		}
		msg.Events = clsync.Visible(events)
		sort.SliceStable(msg.Events, func(i, j int) bool {
			return msg.Events[i].Start.After(msg.Events[j].Start)
		})

		msg.Pending = map[string]bool{}
		ops, err := store.PendingOperations()
		if err != nil {
			msg.Err = err
			return msg
		}
		for _, op := range ops {
			msg.Pending[op.EventID] = true
		}

		msg.Names = map[string]string{}
		if list, err := store.ListCaregivers(); err == nil {
			for _, c := range list {
				msg.Names[c.ID] = c.Name
			}
		}
		msg.Conflicts, _ = store.RecentConflicts(5, nil)

		msg.Status, err = syncer.Status()
		if err != nil {
			msg.Err = err
		}
		return msg
	}
}

func (m Model) runSync() tea.Cmd {
	syncer, opts, after := m.syncer, m.cfg.Options, m.cfg.AfterSync
	return func() tea.Msg {
		res, err := syncer.Sync(context.Background(), &opts)
		if after != nil {
			after(res, err)
		}
		return SyncDoneMsg{Result: res, Err: err, At: time.Now()}
	}
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case TickMsg:
		return m, tea.Batch(m.fetchData(), m.scheduleTick())

	case RefreshDataMsg:
		m.LoadErr = msg.Err
		if msg.Err == nil {
			m.Events = msg.Events
			m.Pending = msg.Pending
			m.Names = msg.Names
			m.Conflicts = msg.Conflicts
			m.Status = msg.Status
		}
		return m, nil

	case SyncDoneMsg:
		m.Syncing = false
		m.LastSync = msg.At
		m.LastErr = msg.Err
		res := msg.Result
		m.LastResult = &res
		if msg.Err != nil {
			m.StatusMessage = "sync failed: " + msg.Err.Error()
			m.StatusIsError = true
		} else {
			m.StatusMessage = "synced"
			m.StatusIsError = false
		}
		return m, tea.Batch(m.fetchData(), clearStatusAfter(3*time.Second))

	case ClearStatusMsg:
		m.StatusMessage = ""
		m.StatusIsError = false
		return m, nil

	case spinner.TickMsg:
		if !m.Syncing {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Sync):
		if m.Syncing {
			return m, nil
		}
		if m.syncer.IsOffline() {
			m.StatusMessage = "offline; press o to go online"
			m.StatusIsError = true
			return m, clearStatusAfter(3 * time.Second)
		}
		m.Syncing = true
		m.StatusMessage = ""
		return m, tea.Batch(m.spinner.Tick, m.runSync())

	case key.Matches(msg, m.keys.Offline):
		offline := !m.syncer.IsOffline()
		if err := m.store.SetOffline(offline); err != nil {
			m.StatusMessage = "save mode: " + err.Error()
			m.StatusIsError = true
			return m, clearStatusAfter(3 * time.Second)
		}
		m.syncer.SetOffline(offline)
		m.StatusIsError = false
		if offline {
			m.StatusMessage = "offline"
			return m, tea.Batch(m.fetchData(), clearStatusAfter(3*time.Second))
		}
		m.StatusMessage = "online"
		m.Syncing = true
		return m, tea.Batch(m.fetchData(), m.spinner.Tick, m.runSync())

	case key.Matches(msg, m.keys.Refresh):
		return m, m.fetchData()

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	}
	return m, nil
}
