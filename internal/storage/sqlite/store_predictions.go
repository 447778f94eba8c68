package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/menta2k/spatial-understanding/internal/storage"
	"github.com/menta2k/spatial-understanding/pkg/types"
)

// CreatePrediction inserts a record and returns its assigned ID. A zero
// CreatedAt is stamped with the current time.
func (s *Store) CreatePrediction(ctx context.Context, rec storage.PredictionRecord) (int64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	if strings.TrimSpace(string(rec.DetectType)) == "" {
		return 0, fmt.Errorf("detect type is required")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	results := strings.TrimSpace(string(rec.Results))
	if results == "" || results == "null" {
		results = "[]"
	}

	res, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO predictions (
	image_name, image_data, detect_type, target_prompt, label_prompt, segmentation_language,
	temperature, model_used, backend, results, result_count, error, processing_time, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		rec.ImageName,
		rec.ImageData,
		string(rec.DetectType),
		rec.TargetPrompt,
		rec.LabelPrompt,
		rec.SegmentationLanguage,
		rec.Temperature,
		rec.ModelUsed,
		rec.Backend,
		results,
		rec.ResultCount,
		rec.Error,
		rec.ProcessingTime,
		toMillis(rec.CreatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("insert prediction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("prediction id: %w", err)
	}
	return id, nil
}

// GetPrediction fetches a full record by ID.
func (s *Store) GetPrediction(ctx context.Context, id int64) (storage.PredictionRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.PredictionRecord{}, err
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, image_name, image_data, detect_type, target_prompt, label_prompt, segmentation_language,
	temperature, model_used, backend, results, result_count, error, processing_time, created_at
FROM predictions WHERE id = ?
`, id)

	var (
		rec            storage.PredictionRecord
		detectType     string
		results        string
		processingTime sql.NullFloat64
		createdAt      int64
	)
	err := row.Scan(
		&rec.ID,
		&rec.ImageName,
		&rec.ImageData,
		&detectType,
		&rec.TargetPrompt,
		&rec.LabelPrompt,
		&rec.SegmentationLanguage,
		&rec.Temperature,
		&rec.ModelUsed,
		&rec.Backend,
		&results,
		&rec.ResultCount,
		&rec.Error,
		&processingTime,
		&createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.PredictionRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.PredictionRecord{}, fmt.Errorf("get prediction: %w", err)
	}
	rec.DetectType = types.DetectionType(detectType)
	rec.Results = []byte(results)
	rec.ProcessingTime = processingTime.Float64
	rec.CreatedAt = fromMillis(createdAt)
	return rec, nil
}

// ListPredictions returns summaries newest first, optionally restricted to
// one detection type.
func (s *Store) ListPredictions(ctx context.Context, filter storage.ListFilter) ([]storage.PredictionSummary, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	filter = filter.Normalize()

	query := `
SELECT id, image_name, detect_type, target_prompt, created_at, processing_time, result_count
FROM predictions`
	args := []any{}
	if filter.DetectType != "" {
		query += " WHERE detect_type = ?"
		args = append(args, string(filter.DetectType))
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list predictions: %w", err)
	}
	defer rows.Close()

	summaries := make([]storage.PredictionSummary, 0, filter.Limit)
	for rows.Next() {
		var (
			sum            storage.PredictionSummary
			detectType     string
			createdAt      int64
			processingTime sql.NullFloat64
		)
		if err := rows.Scan(
			&sum.ID,
			&sum.ImageName,
			&detectType,
			&sum.TargetPrompt,
			&createdAt,
			&processingTime,
			&sum.ResultCount,
		); err != nil {
			return nil, fmt.Errorf("scan prediction: %w", err)
		}
		sum.DetectType = types.DetectionType(detectType)
		sum.CreatedAt = fromMillis(createdAt)
		sum.ProcessingTime = processingTime.Float64
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate predictions: %w", err)
	}
	return summaries, nil
}

// DeletePrediction removes a record, returning storage.ErrNotFound when no
// row matched.
func (s *Store) DeletePrediction(ctx context.Context, id int64) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	res, err := s.sqlDB.ExecContext(ctx, "DELETE FROM predictions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete prediction: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete prediction: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Stats aggregates counts and timing across the stored history.
func (s *Store) Stats(ctx context.Context) (storage.Stats, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Stats{}, err
	}

	var (
		stats   storage.Stats
		avg     sql.NullFloat64
		lastRaw sql.NullInt64
	)
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT COUNT(*),
	COALESCE(SUM(CASE WHEN error != '' THEN 1 ELSE 0 END), 0),
	AVG(processing_time),
	MAX(created_at)
FROM predictions`).Scan(&stats.Total, &stats.Failed, &avg, &lastRaw)
	if err != nil {
		return storage.Stats{}, fmt.Errorf("prediction stats: %w", err)
	}
	stats.AvgProcessingTime = avg.Float64
	if lastRaw.Valid {
		last := fromMillis(lastRaw.Int64)
		stats.LastCreatedAt = &last
	}

	rows, err := s.sqlDB.QueryContext(ctx, "SELECT detect_type, COUNT(*) FROM predictions GROUP BY detect_type")
	if err != nil {
		return storage.Stats{}, fmt.Errorf("prediction stats by type: %w", err)
	}
	defer rows.Close()

	stats.ByType = make(map[string]int64)
	for rows.Next() {
		var (
			detectType string
			count      int64
		)
		if err := rows.Scan(&detectType, &count); err != nil {
			return storage.Stats{}, fmt.Errorf("scan stats: %w", err)
		}
		stats.ByType[detectType] = count
	}
	if err := rows.Err(); err != nil {
		return storage.Stats{}, fmt.Errorf("iterate stats: %w", err)
	}
	return stats, nil
}
