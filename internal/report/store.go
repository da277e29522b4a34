package report

import (
	"context"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"gorm.io/gorm"

	"turbodecode/internal/errors"
	"turbodecode/internal/harness"
	"turbodecode/pkg/exception"
)

// Run is one persisted harness run.
type Run struct {
	ID             uint64 `gorm:"primaryKey;autoIncrement"`
	Input          string `gorm:"not null"`
	Strategies     string `gorm:"not null"`
	State          string `gorm:"not null;index"`
	Lines          int
	Accepted       int
	Rejected       int
	DecodeFailures string `gorm:"type:text"`
	Outputs        string `gorm:"type:text"`
	Cause          string `gorm:"type:text"`
	StartedAt      time.Time
	FinishedAt     time.Time
}

func (Run) TableName() string {
	return "decode_runs"
}

// FromReport converts a harness report into a row.
func FromReport(r harness.Report) (Run, error) {
	failures, err := sonic.ConfigStd.MarshalToString(nonNil(r.DecodeFailures))
	if err != nil {
		return Run{}, errors.Wrap(err, "encode decode failures")
	}
	outputs, err := sonic.ConfigStd.MarshalToString(nonNilPaths(r.Outputs))
	if err != nil {
		return Run{}, errors.Wrap(err, "encode outputs")
	}
	return Run{
		Input:          r.Input,
		Strategies:     strings.Join(r.Strategies, ","),
		State:          r.State.String(),
		Lines:          r.Lines,
		Accepted:       r.Accepted,
		Rejected:       r.Rejected,
		DecodeFailures: failures,
		Outputs:        outputs,
		Cause:          r.Cause,
		StartedAt:      r.Started,
		FinishedAt:     r.Finished,
	}, nil
}

func nonNil(m map[string]int) map[string]int {
	if m == nil {
		return map[string]int{}
	}
	return m
}

func nonNilPaths(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

// Store persists run reports.
type Store struct {
	db *gorm.DB
}

// NewStore wraps a gorm connection.
func NewStore(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, errors.Wrap(exception.ErrNilInstance, "report store db")
	}
	return &Store{db: db}, nil
}

// Migrate creates or updates the runs table.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&Run{})
}

// Save inserts one report and returns its row id.
func (s *Store) Save(ctx context.Context, r harness.Report) (uint64, error) {
	row, err := FromReport(r)
	if err != nil {
		return 0, err
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return 0, errors.Wrap(err, "insert decode run")
	}
	return row.ID, nil
}
