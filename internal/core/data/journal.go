package data

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const journalQueueSize = 256

// Journal writes session events to the database from a background goroutine
// so that the caller never waits on I/O. Events are dropped with a warning if
// the writer falls too far behind.
type Journal struct {
	db     *gorm.DB
	logger logrus.FieldLogger
	now    func() time.Time

	writes    chan func(*gorm.DB) error
	done      chan struct{}
	closeOnce sync.Once
}

func NewJournal(db *gorm.DB, logger logrus.FieldLogger) *Journal {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	j := &Journal{
		db:     db,
		logger: logger,
		now:    time.Now,
		writes: make(chan func(*gorm.DB) error, journalQueueSize),
		done:   make(chan struct{}),
	}
	go j.run()
	return j
}

func (j *Journal) run() {
	defer close(j.done)
	for write := range j.writes {
		if err := write(j.db); err != nil {
			j.logger.Warnf("failed to write session journal entry: %v", err)
		}
	}
}

func (j *Journal) enqueue(write func(*gorm.DB) error) {
	select {
	case j.writes <- write:
	default:
		j.logger.Warn("session journal is backed up, dropping entry")
	}
}

func (j *Journal) SessionStarted(id, mode, address string) {
	record := &SessionRecord{ID: id, Mode: mode, Address: address, StartedAt: j.now()}
	j.enqueue(func(db *gorm.DB) error { return CreateSession(db, record) })
}

func (j *Journal) SessionStopped(id string) {
	at := j.now()
	j.enqueue(func(db *gorm.DB) error { return StopSession(db, id, at) })
}

func (j *Journal) SceneRequested(id, scene string, server bool) {
	transition := &SceneTransition{SessionID: id, Scene: scene, Server: server, RequestedAt: j.now()}
	j.enqueue(func(db *gorm.DB) error { return CreateSceneTransition(db, transition) })
}

func (j *Journal) SceneLoaded(id, scene string, took time.Duration) {
	at := j.now()
	j.enqueue(func(db *gorm.DB) error { return CompleteSceneTransition(db, id, scene, at, took) })
}

func (j *Journal) PlayerAdded(id string, connID int, slot int16, netID uint32) {
	player := &PlayerRecord{SessionID: id, ConnectionID: connID, Slot: slot, NetID: netID, AddedAt: j.now()}
	j.enqueue(func(db *gorm.DB) error { return CreatePlayerRecord(db, player) })
}

func (j *Journal) PlayerRemoved(id string, connID int, slot int16) {
	at := j.now()
	j.enqueue(func(db *gorm.DB) error { return RemovePlayerRecord(db, id, connID, slot, at) })
}

// Close waits for every queued entry to be written. The journal can't be
// used afterwards.
func (j *Journal) Close() {
	j.closeOnce.Do(func() { close(j.writes) })
	<-j.done
}
