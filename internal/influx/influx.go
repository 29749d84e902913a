// Package influx writes lifecycle events to InfluxDB as time series. When the
// server cannot be reached, points go to a gzipped line protocol backup file.
package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/ktgames/mining/pkg/core"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Measurement names.
const (
	MeasurementGeneration = "spot_generation"
	MeasurementConversion = "spot_conversion"
	MeasurementProgress   = "spot_progress"
	MeasurementDepletion  = "spot_depleted"
)

// ErrDisabled is returned by Connect when influx.enabled is false.
var ErrDisabled = errors.New("influx.enabled is false")

// Manager handles InfluxDB connections and writes. It satisfies
// storage.Backend so it can sit next to the recording backends.
type Manager struct {
	Client       influxdb2.Client
	Writer       influxdb2_api.WriteAPI
	BackupWriter *gzip.Writer
	IsValid      bool
	Bucket       string
	Logger       zerolog.Logger
	BackupPath   string

	mu         sync.Mutex
	backupFile *os.File
	session    core.Session
}

// NewManager creates a new InfluxDB manager.
func NewManager(log zerolog.Logger, backupPath string) *Manager {
	return &Manager{
		Bucket:     viper.GetString("influx.bucket"),
		Logger:     log,
		BackupPath: backupPath,
	}
}

// ServerURL builds the InfluxDB address from the influx.* settings.
func ServerURL() string {
	return fmt.Sprintf(
		"%s://%s:%s",
		viper.GetString("influx.protocol"),
		viper.GetString("influx.host"),
		viper.GetString("influx.port"),
	)
}

// Connect establishes a connection to InfluxDB.
func (m *Manager) Connect() error {
	if !viper.GetBool("influx.enabled") {
		return ErrDisabled
	}

	m.Client = influxdb2.NewClientWithOptions(
		ServerURL(),
		viper.GetString("influx.token"),
		influxdb2.DefaultOptions().
			SetBatchSize(2500).
			SetFlushInterval(1000),
	)

	// validate client connection health
	running, err := m.Client.Ping(context.Background())
	if err != nil || !running {
		m.Logger.Info().Str("backupPath", m.BackupPath).
			Msg("Failed to initialize InfluxDB client, writing to backup file")
		return m.openBackup()
	}

	if err := m.setupOrganizationAndBucket(); err != nil {
		return err
	}
	m.createWriter()
	m.IsValid = true
	m.Logger.Info().Msg("InfluxDB client initialized")
	return nil
}

func (m *Manager) openBackup() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BackupWriter != nil {
		return nil
	}
	if m.BackupPath == "" {
		return errors.New("no backup path for InfluxDB points")
	}
	file, err := os.OpenFile(m.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("error creating backup file: %w", err)
	}
	m.backupFile = file
	m.BackupWriter = gzip.NewWriter(file)
	m.IsValid = false
	return nil
}

func (m *Manager) setupOrganizationAndBucket() error {
	ctx := context.Background()
	orgName := viper.GetString("influx.org")

	influxOrg, err := m.Client.OrganizationsAPI().FindOrganizationByName(ctx, orgName)
	if err != nil {
		m.Logger.Info().Str("org", orgName).Msg("Organization not found, creating")
		influxOrg, err = m.Client.OrganizationsAPI().CreateOrganizationWithName(ctx, orgName)
		if err != nil {
			m.Logger.Error().Err(err).Str("org", orgName).Msg("Error creating organization")
			return err
		}
	}

	if _, err = m.Client.BucketsAPI().FindBucketByName(ctx, m.Bucket); err != nil {
		m.Logger.Info().Str("bucket", m.Bucket).Msg("Bucket not found, creating")

		rule := domain.RetentionRuleTypeExpire
		_, err = m.Client.BucketsAPI().CreateBucketWithName(ctx, influxOrg, m.Bucket, domain.RetentionRule{
			Type:         &rule,
			EverySeconds: 60 * 60 * 24 * 90, // 90 days
		})
		if err != nil {
			m.Logger.Error().Err(err).Str("bucket", m.Bucket).Msg("Error creating bucket")
			return err
		}
	}
	return nil
}

func (m *Manager) createWriter() {
	m.Writer = m.Client.WriteAPI(viper.GetString("influx.org"), m.Bucket)

	go func(errorsCh <-chan error) {
		for writeErr := range errorsCh {
			m.Logger.Error().Err(writeErr).Str("bucket", m.Bucket).
				Msg("Error sending data to InfluxDB")
		}
	}(m.Writer.Errors())

	m.Logger.Debug().Str("bucket", m.Bucket).Msg("InfluxDB writer created")
}

// WritePoint writes a point to InfluxDB or backup file.
func (m *Manager) WritePoint(point *influxdb2_write.Point) error {
	if m.IsValid {
		m.Writer.WritePoint(point)
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BackupWriter == nil {
		return errors.New("influxDB client not initialized and backup writer not available")
	}
	lineProtocol := influxdb2_write.PointToLineProtocol(point, time.Nanosecond)
	if _, err := m.BackupWriter.Write([]byte(lineProtocol)); err != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %w", err)
	}
	return nil
}

// Init connects. A disabled or unreachable server is not an error as long
// as the backup file can be opened.
func (m *Manager) Init() error {
	err := m.Connect()
	if errors.Is(err, ErrDisabled) {
		return m.openBackup()
	}
	return err
}

// Close flushes pending writes and closes the client and backup file.
func (m *Manager) Close() error {
	if m.Writer != nil {
		m.Writer.Flush()
	}
	if m.Client != nil {
		m.Client.Close()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	if m.BackupWriter != nil {
		errs = append(errs, m.BackupWriter.Close())
		m.BackupWriter = nil
	}
	if m.backupFile != nil {
		errs = append(errs, m.backupFile.Close())
		m.backupFile = nil
	}
	m.IsValid = false
	return errors.Join(errs...)
}

// StartSession tags every later point with the session.
func (m *Manager) StartSession(s *core.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = *s
	return nil
}

// EndSession flushes pending points.
func (m *Manager) EndSession() error {
	if m.Writer != nil {
		m.Writer.Flush()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BackupWriter != nil {
		return m.BackupWriter.Flush()
	}
	return nil
}

func (m *Manager) newPoint(measurement string, at time.Time, spot core.SpotID) *influxdb2_write.Point {
	m.mu.Lock()
	s := m.session
	m.mu.Unlock()

	if at.IsZero() {
		at = time.Now()
	}
	return influxdb2_write.NewPointWithMeasurement(measurement).
		AddTag("session", s.UUID).
		AddTag("world", s.WorldName).
		AddTag("spot", fmt.Sprintf("%d", spot)).
		SetTime(at)
}

// RecordSpotGeneration writes a spot_generation point.
func (m *Manager) RecordSpotGeneration(e *core.SpotGeneration) error {
	return m.WritePoint(GenerationPoint(m.newPoint(MeasurementGeneration, e.Time, e.SpotID), e))
}

// RecordConversion writes a spot_conversion point.
func (m *Manager) RecordConversion(e *core.ConversionEvent) error {
	p := m.newPoint(MeasurementConversion, e.Time, e.SpotID).
		AddTag("kind", e.Kind.String()).
		AddField("generation", int64(e.Generation))
	return m.WritePoint(p)
}

// RecordProgress writes a spot_progress point.
func (m *Manager) RecordProgress(e *core.ProgressEvent) error {
	p := m.newPoint(MeasurementProgress, e.Time, e.SpotID).
		AddField("generation", int64(e.Generation)).
		AddField("amount", e.Amount).
		AddField("accumulated", e.Accumulated).
		AddField("total", e.Total)
	return m.WritePoint(p)
}

// RecordDepletion writes a spot_depleted point.
func (m *Manager) RecordDepletion(e *core.DepletionEvent) error {
	return m.WritePoint(DepletionPoint(m.newPoint(MeasurementDepletion, e.Time, e.SpotID), e))
}

// GenerationPoint adds the fields of a type draw to p.
func GenerationPoint(p *influxdb2_write.Point, e *core.SpotGeneration) *influxdb2_write.Point {
	return p.
		AddTag("mineral", e.MineralType.String()).
		AddField("generation", int64(e.Generation)).
		AddField("random", e.RandomValue).
		AddField("fallback", e.Fallback)
}

// DepletionPoint adds the fields of a depletion to p.
func DepletionPoint(p *influxdb2_write.Point, e *core.DepletionEvent) *influxdb2_write.Point {
	return p.
		AddTag("mineral", e.MineralType.String()).
		AddTag("kind", e.Kind.String()).
		AddField("generation", int64(e.Generation)).
		AddField("accumulated", e.Accumulated).
		AddField("total", e.Total)
}
