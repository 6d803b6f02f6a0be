package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"courtbook/internal/domain"
	"courtbook/internal/models"
)

func (db *DB) UpsertFacility(ctx context.Context, f *models.Facility) error {
	pricing, err := json.Marshal(f.Pricing)
	if err != nil {
		return fmt.Errorf("failed to encode pricing rules: %w", err)
	}

	query := `INSERT INTO facilities (id, name, timezone, open_time, close_time, pricing)
              VALUES (?, ?, ?, ?, ?, ?)
              ON CONFLICT(id) DO UPDATE SET
                  name = excluded.name,
                  timezone = excluded.timezone,
                  open_time = excluded.open_time,
                  close_time = excluded.close_time,
                  pricing = excluded.pricing`
	if _, err := db.ExecContext(ctx, query, f.ID, f.Name, f.Timezone, f.OpenTime, f.CloseTime, string(pricing)); err != nil {
		return fmt.Errorf("failed to upsert facility: %w", err)
	}
	return nil
}

func (db *DB) GetFacility(ctx context.Context, id int64) (*models.Facility, error) {
	var f models.Facility
	var pricing string
	query := `SELECT id, name, timezone, open_time, close_time, pricing FROM facilities WHERE id = ?`
	err := db.QueryRowContext(ctx, query, id).Scan(&f.ID, &f.Name, &f.Timezone, &f.OpenTime, &f.CloseTime, &pricing)
	if isNoRows(err) {
		return nil, domain.NotFound("facility", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get facility: %w", err)
	}
	if err := json.Unmarshal([]byte(pricing), &f.Pricing); err != nil {
		return nil, fmt.Errorf("failed to decode pricing rules of facility %d: %w", id, err)
	}
	return &f, nil
}

// UpsertCourt inserts a court, or updates it when ID is set.
func (db *DB) UpsertCourt(ctx context.Context, c *models.Court) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}

	var id any
	if c.ID > 0 {
		id = c.ID
	}
	query := `INSERT INTO courts (id, name, type, facility_id, hourly_rate, slot_minutes, is_active, created_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)
              ON CONFLICT(id) DO UPDATE SET
                  name = excluded.name,
                  type = excluded.type,
                  facility_id = excluded.facility_id,
                  hourly_rate = excluded.hourly_rate,
                  slot_minutes = excluded.slot_minutes,
                  is_active = excluded.is_active`
	result, err := db.ExecContext(ctx, query,
		id, c.Name, c.Type, c.FacilityID, c.HourlyRate, c.SlotMinutes, c.IsActive, formatTime(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert court: %w", err)
	}
	if c.ID == 0 {
		if c.ID, err = result.LastInsertId(); err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
	}

	db.mu.Lock()
	db.courtsCache[c.ID] = *c
	db.mu.Unlock()
	return nil
}

func (db *DB) GetCourt(ctx context.Context, id int64) (*models.Court, error) {
	db.mu.RLock()
	cached, ok := db.courtsCache[id]
	db.mu.RUnlock()
	if ok {
		return &cached, nil
	}

	query := `SELECT id, name, type, facility_id, hourly_rate, slot_minutes, is_active, created_at FROM courts WHERE id = ?`
	c, err := scanCourt(db.QueryRowContext(ctx, query, id))
	if isNoRows(err) {
		return nil, domain.NotFound("court", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get court: %w", err)
	}

	db.mu.Lock()
	db.courtsCache[c.ID] = *c
	db.mu.Unlock()
	return c, nil
}

func (db *DB) GetActiveCourts(ctx context.Context) ([]*models.Court, error) {
	query := `SELECT id, name, type, facility_id, hourly_rate, slot_minutes, is_active, created_at
              FROM courts WHERE is_active = 1 ORDER BY facility_id, id`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get active courts: %w", err)
	}
	defer rows.Close()

	var courts []*models.Court
	for rows.Next() {
		c, err := scanCourt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan court: %w", err)
		}
		courts = append(courts, c)
	}
	return courts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCourt(row rowScanner) (*models.Court, error) {
	var c models.Court
	var createdAt string
	if err := row.Scan(&c.ID, &c.Name, &c.Type, &c.FacilityID, &c.HourlyRate, &c.SlotMinutes, &c.IsActive, &createdAt); err != nil {
		return nil, err
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	c.CreatedAt = t
	return &c, nil
}

func (db *DB) UpsertService(ctx context.Context, s *models.Service) error {
	var id any
	if s.ID > 0 {
		id = s.ID
	}
	query := `INSERT INTO services (id, name, billing_unit, category) VALUES (?, ?, ?, ?)
              ON CONFLICT(id) DO UPDATE SET
                  name = excluded.name,
                  billing_unit = excluded.billing_unit,
                  category = excluded.category`
	result, err := db.ExecContext(ctx, query, id, s.Name, s.BillingUnit, s.Category)
	if err != nil {
		return fmt.Errorf("failed to upsert service: %w", err)
	}
	if s.ID == 0 {
		if s.ID, err = result.LastInsertId(); err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
	}
	return nil
}

func (db *DB) GetService(ctx context.Context, id int64) (*models.Service, error) {
	var s models.Service
	query := `SELECT id, name, billing_unit, category FROM services WHERE id = ?`
	err := db.QueryRowContext(ctx, query, id).Scan(&s.ID, &s.Name, &s.BillingUnit, &s.Category)
	if isNoRows(err) {
		return nil, domain.NotFound("service", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get service: %w", err)
	}
	return &s, nil
}

func (db *DB) UpsertBranchService(ctx context.Context, bs *models.BranchService) error {
	var id any
	if bs.ID > 0 {
		id = bs.ID
	}
	query := `INSERT INTO branch_services (id, facility_id, service_id, unit_price) VALUES (?, ?, ?, ?)
              ON CONFLICT(id) DO UPDATE SET
                  facility_id = excluded.facility_id,
                  service_id = excluded.service_id,
                  unit_price = excluded.unit_price`
	result, err := db.ExecContext(ctx, query, id, bs.FacilityID, bs.ServiceID, bs.UnitPrice)
	if err != nil {
		return fmt.Errorf("failed to upsert branch service: %w", err)
	}
	if bs.ID == 0 {
		if bs.ID, err = result.LastInsertId(); err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
	}
	return nil
}

func (db *DB) GetBranchService(ctx context.Context, id int64) (*models.BranchService, error) {
	var bs models.BranchService
	query := `SELECT id, facility_id, service_id, unit_price FROM branch_services WHERE id = ?`
	err := db.QueryRowContext(ctx, query, id).Scan(&bs.ID, &bs.FacilityID, &bs.ServiceID, &bs.UnitPrice)
	if isNoRows(err) {
		return nil, domain.NotFound("branch service", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get branch service: %w", err)
	}
	return &bs, nil
}

func (db *DB) GetBranchServices(ctx context.Context, facilityID int64) ([]*models.BranchService, error) {
	query := `SELECT id, facility_id, service_id, unit_price FROM branch_services WHERE facility_id = ? ORDER BY id`
	rows, err := db.QueryContext(ctx, query, facilityID)
	if err != nil {
		return nil, fmt.Errorf("failed to get branch services: %w", err)
	}
	defer rows.Close()

	var out []*models.BranchService
	for rows.Next() {
		var bs models.BranchService
		if err := rows.Scan(&bs.ID, &bs.FacilityID, &bs.ServiceID, &bs.UnitPrice); err != nil {
			return nil, fmt.Errorf("failed to scan branch service: %w", err)
		}
		out = append(out, &bs)
	}
	return out, rows.Err()
}

// SeedCatalog upserts facilities first so courts and prices can reference them.
func (db *DB) SeedCatalog(
	ctx context.Context,
	facilities []models.Facility,
	courts []models.Court,
	services []models.Service,
	branchServices []models.BranchService,
) error {
	for i := range facilities {
		if err := db.UpsertFacility(ctx, &facilities[i]); err != nil {
			return err
		}
	}
	for i := range services {
		if err := db.UpsertService(ctx, &services[i]); err != nil {
			return err
		}
	}
	for i := range branchServices {
		if err := db.UpsertBranchService(ctx, &branchServices[i]); err != nil {
			return err
		}
	}
	for i := range courts {
		if err := db.UpsertCourt(ctx, &courts[i]); err != nil {
			return err
		}
	}
	db.logger.Info().
		Int("facilities", len(facilities)).
		Int("courts", len(courts)).
		Int("services", len(services)).
		Msg("catalog seeded")
	return nil
}
