// Package corestate wires the Persistent Store's collections together into
// the one shared handle every core component is built against — the direct
// analog of the original source's AppState, generalized from a single
// Mutex<Vec<Rig>> to one Collection per entity kind.
package corestate

import (
	"log"
	"os"
	"time"

	"github.com/tdat-dev/corengine/internal/audit"
	"github.com/tdat-dev/corengine/internal/model"
	"github.com/tdat-dev/corengine/internal/store"
)

// State is the process-wide handle passed to every component constructor.
// Each field is independently lockable; nothing here should ever be locked
// together with another field — see store.Collection's own discipline.
type State struct {
	Store *store.Store

	Rigs     *store.Collection[model.Rig]
	Crews    *store.Collection[model.Crew]
	Tasks    *store.Collection[model.Task]
	Actors   *store.Collection[model.Actor]
	Hooks    *store.Collection[model.Hook]
	Workers  *store.Collection[model.Worker]
	Runs     *store.Collection[model.Run]
	Handoffs *store.Collection[model.Handoff]
	Convoys  *store.Collection[model.Convoy]

	Settings   *store.Document[model.Settings]
	Supervisor *store.Document[model.SupervisorState]

	Audit *audit.Sink
	Log   *log.Logger
}

// Open loads every collection and document under root (the home directory
// default applies when root is empty) and returns a ready State.
func Open(root string) (*State, error) {
	s, err := store.Open(root)
	if err != nil {
		return nil, err
	}

	logger := log.New(os.Stderr, "", log.LstdFlags)

	rigs, err := store.NewCollection[model.Rig](s, "rigs")
	if err != nil {
		return nil, err
	}
	crews, err := store.NewCollection[model.Crew](s, "crews")
	if err != nil {
		return nil, err
	}
	tasks, err := store.NewCollection[model.Task](s, "tasks")
	if err != nil {
		return nil, err
	}
	actors, err := store.NewCollection[model.Actor](s, "actors")
	if err != nil {
		return nil, err
	}
	hooks, err := store.NewCollection[model.Hook](s, "hooks")
	if err != nil {
		return nil, err
	}
	workers, err := store.NewCollection[model.Worker](s, "workers")
	if err != nil {
		return nil, err
	}
	runs, err := store.NewCollection[model.Run](s, "runs")
	if err != nil {
		return nil, err
	}
	handoffs, err := store.NewCollection[model.Handoff](s, "handoffs")
	if err != nil {
		return nil, err
	}
	convoys, err := store.NewCollection[model.Convoy](s, "convoys")
	if err != nil {
		return nil, err
	}
	settings, err := store.NewDocument(s, "settings", model.DefaultSettings())
	if err != nil {
		return nil, err
	}
	supervisorDoc, err := store.NewDocument(s, "supervisor_state", model.SupervisorState{LoopIntervalSeconds: 30})
	if err != nil {
		return nil, err
	}

	return &State{
		Store:      s,
		Rigs:       rigs,
		Crews:      crews,
		Tasks:      tasks,
		Actors:     actors,
		Hooks:      hooks,
		Workers:    workers,
		Runs:       runs,
		Handoffs:   handoffs,
		Convoys:    convoys,
		Settings:   settings,
		Supervisor: supervisorDoc,
		Audit:      audit.NewSink(s, logger),
		Log:        logger,
	}, nil
}

// FindRig returns the rig with id, or false.
func (s *State) FindRig(id string) (model.Rig, bool) {
	for _, r := range s.Rigs.Snapshot() {
		if r.ID == id {
			return r, true
		}
	}
	return model.Rig{}, false
}

// FindCrew returns the crew with id, or false.
func (s *State) FindCrew(id string) (model.Crew, bool) {
	for _, c := range s.Crews.Snapshot() {
		if c.ID == id {
			return c, true
		}
	}
	return model.Crew{}, false
}

// ActiveCrew returns the first Active crew in rigID, or false.
func (s *State) ActiveCrew(rigID string) (model.Crew, bool) {
	for _, c := range s.Crews.Snapshot() {
		if c.RigID == rigID && c.Status == model.CrewActive {
			return c, true
		}
	}
	return model.Crew{}, false
}

// FindActor returns the actor with id, or false.
func (s *State) FindActor(id string) (model.Actor, bool) {
	for _, a := range s.Actors.Snapshot() {
		if a.ActorID == id {
			return a, true
		}
	}
	return model.Actor{}, false
}

// FindTask returns the task with id, or false.
func (s *State) FindTask(id string) (model.Task, bool) {
	for _, t := range s.Tasks.Snapshot() {
		if t.ID == id {
			return t, true
		}
	}
	return model.Task{}, false
}

// FindHook returns the hook with id, or false.
func (s *State) FindHook(id string) (model.Hook, bool) {
	for _, h := range s.Hooks.Snapshot() {
		if h.HookID == id {
			return h, true
		}
	}
	return model.Hook{}, false
}

// FindWorker returns the worker with id, or false.
func (s *State) FindWorker(id string) (model.Worker, bool) {
	for _, w := range s.Workers.Snapshot() {
		if w.ID == id {
			return w, true
		}
	}
	return model.Worker{}, false
}

// FindRunByWorker returns the most recent run recorded for workerID, or false.
func (s *State) FindRunByWorker(workerID string) (model.Run, bool) {
	var found model.Run
	ok := false
	for _, r := range s.Runs.Snapshot() {
		if r.WorkerID == workerID {
			found = r
			ok = true
		}
	}
	return found, ok
}

// Now is the single clock every component reads timestamps from.
func Now() time.Time { return time.Now() }
