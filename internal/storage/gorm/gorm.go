// Package gormstorage implements the storage.Backend interface using GORM
// with internal queues and a background DB writer goroutine.
package gormstorage

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/sitetrace/extension/internal/align"
	"github.com/sitetrace/extension/internal/config"
	"github.com/sitetrace/extension/internal/database"
	"github.com/sitetrace/extension/internal/geo"
	"github.com/sitetrace/extension/internal/logging"
	"github.com/sitetrace/extension/internal/model"
	"github.com/sitetrace/extension/internal/model/convert"
	"github.com/sitetrace/extension/internal/queue"
	"github.com/sitetrace/extension/pkg/core"
	"gorm.io/gorm"
)

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	Config     config.DBConfig
	DB         *gorm.DB // injected in tests, created from Config otherwise
	LogManager *logging.SlogManager
	DBLog      *zerolog.Logger
	Geo        *geo.Reference
}

// queues holds all the write queues for batch DB insertion.
type queues struct {
	TrackedPoses      *queue.Queue[model.TrackedPose]
	CalibrationPoints *queue.Queue[model.CalibrationPoint]
	TelemetryEvents   *queue.Queue[model.TelemetryEvent]
}

func newQueues() *queues {
	return &queues{
		TrackedPoses:      queue.New[model.TrackedPose](),
		CalibrationPoints: queue.New[model.CalibrationPoint](),
		TelemetryEvents:   queue.New[model.TelemetryEvent](),
	}
}

// writeInterval is the pause between write cycles of the DB writer goroutine.
const writeInterval = 2 * time.Second

// Backend implements storage.Backend using GORM with queue-based batch writes.
type Backend struct {
	deps          Dependencies
	mgr           *database.Manager
	queues        *queues
	sessionID     atomic.Uint64
	stopChan      chan struct{}
	dbReady       bool
	lastWriteNano atomic.Int64
	alignment     atomic.Pointer[align.Result]
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	return &Backend{
		deps: deps,
	}
}

// Init creates internal queues, runs schema migration, and starts the DB
// writer goroutine. If no DB was injected via Dependencies, it connects
// using the configured driver; with neither a DB nor a driver the backend
// runs in queue-only mode.
func (b *Backend) Init() error {
	b.queues = newQueues()
	b.stopChan = make(chan struct{})

	if b.deps.DB == nil && b.deps.Config.Driver != "" {
		dbLog := zerolog.Nop()
		if b.deps.DBLog != nil {
			dbLog = *b.deps.DBLog
		}
		mgr := database.NewManager(b.deps.Config, dbLog)
		if err := mgr.Connect(); err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		b.deps.DB = mgr.DB
		b.mgr = mgr
	}

	if b.deps.DB != nil {
		if err := b.setupDB(); err != nil {
			return fmt.Errorf("failed to setup DB: %w", err)
		}
		b.dbReady = true
	}

	b.startDBWriter()
	return nil
}

// setupDB migrates tables and creates the default extension info row.
func (b *Backend) setupDB() error {
	db := b.deps.DB
	log := b.deps.LogManager

	if !db.Migrator().HasTable(&model.ExtensionInfo{}) {
		if err := db.AutoMigrate(&model.ExtensionInfo{}); err != nil {
			log.WriteLog("setupDB", fmt.Sprintf("Failed to create extension_info table: %s", err), "ERROR")
			return fmt.Errorf("failed to auto-migrate ExtensionInfo: %w", err)
		}
		if err := db.Create(&model.ExtensionInfo{
			CompanyName: "SiteTrace",
			Website:     "https://sitetrace.io",
			Logo:        "https://sitetrace.io/logo.png",
		}).Error; err != nil {
			return fmt.Errorf("failed to create extension_info entry: %w", err)
		}
	}

	if db.Name() == "postgres" {
		if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS postgis;`).Error; err != nil {
			return fmt.Errorf("failed to create PostGIS extension: %w", err)
		}
		log.WriteLog("setupDB", "PostGIS extension created", "INFO")
	}

	log.WriteLog("setupDB", "Migrating schema", "INFO")
	if err := db.AutoMigrate(model.DatabaseModels...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	log.WriteLog("setupDB", "Database setup complete", "INFO")
	return nil
}

// Close drains the queues one final time and stops the DB writer goroutine.
// A session recorded on the in-memory SQLite fallback is vacuumed to disk so
// it survives the process.
func (b *Backend) Close() error {
	if b.stopChan != nil {
		close(b.stopChan)
	}
	if b.dbReady {
		b.writeCycle()
	}
	if b.mgr != nil && b.mgr.InMemory() {
		dumpPath := fmt.Sprintf("sitetrace_%s.db", time.Now().Format("20060102_150405"))
		if err := database.DumpMemoryDBToDisk(b.deps.DB, dumpPath); err != nil {
			b.deps.LogManager.WriteLog("Close", fmt.Sprintf("Failed to dump in-memory DB to disk: %v", err), "ERROR")
		} else {
			b.deps.LogManager.WriteLog("Close", fmt.Sprintf("Dumped in-memory DB to %s", dumpPath), "INFO")
		}
	}
	return nil
}

// StartSession performs site get-or-insert and session create in the DB.
func (b *Backend) StartSession(coreSession *core.Session, coreSite *core.SiteModel) error {
	if b.deps.DB == nil {
		return nil
	}

	db := b.deps.DB

	gormSite := convert.CoreToSite(*coreSite)
	if b.deps.Geo != nil {
		if origin, ok := b.deps.Geo.Origin(); ok {
			gormSite.Location = origin.AsGeometry()
		}
	}

	// Site get-or-insert keyed on name and revision
	if err := db.Where(model.Site{Name: gormSite.Name, Revision: gormSite.Revision}).
		FirstOrCreate(&gormSite).Error; err != nil {
		return fmt.Errorf("failed to get or insert site: %w", err)
	}

	gormSession := convert.CoreToSession(*coreSession)
	gormSession.Site = gormSite
	gormSession.SiteID = gormSite.ID
	if err := db.Create(&gormSession).Error; err != nil {
		return fmt.Errorf("failed to insert new session: %w", err)
	}

	// Assign DB-generated IDs back to core types
	coreSession.ID = gormSession.ID
	coreSite.ID = gormSite.ID

	// Store session ID for the DB writer goroutine
	b.sessionID.Store(uint64(gormSession.ID))

	return nil
}

// SetSessionID sets the current session ID for the DB writer (used by CLI tools).
func (b *Backend) SetSessionID(id uint) {
	b.sessionID.Store(uint64(id))
}

// EndSession drains pending writes and stamps the session end time.
func (b *Backend) EndSession() error {
	if b.deps.DB == nil {
		return nil
	}

	b.writeCycle()

	sessionID := uint(b.sessionID.Load())
	if sessionID == 0 {
		return nil
	}
	return b.deps.DB.Model(&model.Session{}).
		Where("id = ?", sessionID).
		Update("end_time", time.Now()).Error
}

// SaveAlignment inserts an alignment synchronously. Alignments are rare and
// the recorder wants the DB-assigned ID immediately.
func (b *Backend) SaveAlignment(a *core.Alignment) error {
	gormObj := convert.CoreToAlignment(*a)
	gormObj.SessionID = uint(b.sessionID.Load())
	if b.deps.DB != nil {
		if err := b.deps.DB.Create(&gormObj).Error; err != nil {
			return fmt.Errorf("failed to insert alignment: %w", err)
		}
		a.ID = gormObj.ID
	}

	result := align.FromRecord(*a)
	b.alignment.Store(&result)
	return nil
}

// RecordCalibrationPoint converts and queues a calibration point.
func (b *Backend) RecordCalibrationPoint(p *core.CalibrationPoint) error {
	gormObj := convert.CoreToCalibrationPoint(*p)
	b.queues.CalibrationPoints.Push(gormObj)
	return nil
}

// AddAnnotation inserts an annotation synchronously (not queued) because
// annotations are low-volume and need immediate ID assignment for toggling.
func (b *Backend) AddAnnotation(a *core.Annotation) error {
	gormObj := convert.CoreToAnnotation(*a)
	gormObj.SessionID = uint(b.sessionID.Load())

	// Projected map location needs both a georeference and an alignment to
	// carry the model anchor into world space.
	if b.deps.Geo != nil {
		if result := b.alignment.Load(); result != nil {
			if pt, ok := b.deps.Geo.ProjectWorld(result.Apply(a.ModelAnchor)); ok {
				gormObj.Location = pt.AsGeometry()
			}
		}
	}

	if b.deps.DB != nil {
		if err := b.deps.DB.Create(&gormObj).Error; err != nil {
			return fmt.Errorf("failed to insert annotation: %w", err)
		}
		a.ID = gormObj.ID
	}
	return nil
}

// ToggleAnnotation stores the annotation's new open state.
func (b *Backend) ToggleAnnotation(a *core.Annotation) error {
	if b.deps.DB == nil || a.ID == 0 {
		return nil
	}
	return b.deps.DB.Model(&model.Annotation{}).
		Where("id = ?", a.ID).
		Update("open", a.Open).Error
}

// RecordTrackedPose converts and queues a trail pose.
func (b *Backend) RecordTrackedPose(p *core.TrackedPose) error {
	gormObj := convert.CoreToTrackedPose(*p, time.Now())
	b.queues.TrackedPoses.Push(gormObj)
	return nil
}

// RecordTelemetryEvent converts and queues a telemetry event.
func (b *Backend) RecordTelemetryEvent(e *core.TelemetryEvent) error {
	gormObj := convert.CoreToTelemetryEvent(*e)
	b.queues.TelemetryEvents.Push(gormObj)
	return nil
}

// GetDBWriteDuration returns the duration of the last queue write cycle.
func (b *Backend) GetDBWriteDuration() time.Duration {
	return time.Duration(b.lastWriteNano.Load())
}

// QueueLengths returns the current pending write queue depths.
func (b *Backend) QueueLengths() model.QueueLengths {
	if b.queues == nil {
		return model.QueueLengths{}
	}
	return model.QueueLengths{
		TrackedPoses:      uint16(b.queues.TrackedPoses.Len()),
		CalibrationPoints: uint16(b.queues.CalibrationPoints.Len()),
		TelemetryEvents:   uint16(b.queues.TelemetryEvents.Len()),
	}
}

// DB exposes the underlying handle for the status monitor.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// Ready reports whether the database connection is usable.
func (b *Backend) Ready() bool {
	return b.dbReady
}

// writeQueue writes all items from a queue to the database in a transaction.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string, log func(string, string, string), prepare func([]T)) {
	if q.Empty() {
		return
	}

	tx := db.Begin()
	items := q.Drain()
	if prepare != nil {
		prepare(items)
	}
	if err := tx.Create(&items).Error; err != nil {
		log(":DB:WRITER:", fmt.Sprintf("Error creating %s: %v", name, err), "ERROR")
		tx.Rollback()
		q.Push(items...)
		return
	}

	tx.Commit()
}

// writeCycle drains every queue into the DB once, stamping the current
// session ID on each row.
func (b *Backend) writeCycle() {
	if b.deps.DB == nil {
		return
	}
	log := b.deps.LogManager.WriteLog
	sessionID := uint(b.sessionID.Load())

	stampPoses := func(items []model.TrackedPose) {
		for i := range items {
			items[i].SessionID = sessionID
		}
	}
	stampCalibrationPoints := func(items []model.CalibrationPoint) {
		for i := range items {
			items[i].SessionID = sessionID
		}
	}
	stampTelemetry := func(items []model.TelemetryEvent) {
		for i := range items {
			items[i].SessionID = sessionID
		}
	}

	start := time.Now()
	writeQueue(b.deps.DB, b.queues.TrackedPoses, "tracked poses", log, stampPoses)
	writeQueue(b.deps.DB, b.queues.CalibrationPoints, "calibration points", log, stampCalibrationPoints)
	writeQueue(b.deps.DB, b.queues.TelemetryEvents, "telemetry events", log, stampTelemetry)
	b.lastWriteNano.Store(int64(time.Since(start)))
}

// startDBWriter starts the background goroutine that periodically drains
// queues into the DB.
func (b *Backend) startDBWriter() {
	go func() {
		for {
			select {
			case <-b.stopChan:
				return
			default:
			}

			if !b.dbReady {
				time.Sleep(1 * time.Second)
				continue
			}

			b.writeCycle()
			time.Sleep(writeInterval)
		}
	}()
}
