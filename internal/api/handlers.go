package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"courtbook/internal/domain"
	"courtbook/internal/export"
	"courtbook/internal/models"
	"courtbook/internal/reservation"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type slotsRequest struct {
	Slots []models.Interval `json:"slots"`
	Items []models.LineItem `json:"items,omitempty"`
}

type itemsRequest struct {
	Items []models.LineItem `json:"items"`
}

// atRequest carries an optional effective time; the server clock is used
// when it is omitted.
type atRequest struct {
	At *time.Time `json:"at,omitempty"`
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return domain.Invalid("body", "invalid JSON body: %v", err)
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.Invalid(name, "must be a positive integer")
	}
	return id, nil
}

func queryID(r *http.Request, name string) (int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 0 {
		return 0, domain.Invalid(name, "must be a non-negative integer")
	}
	return id, nil
}

func queryBool(r *http.Request, name string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return v
}

// queryDate parses a calendar date. Noon UTC keeps the same calendar date in
// every facility timezone.
func queryDate(r *http.Request) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("date"))
	if raw == "" {
		return time.Time{}, domain.Invalid("date", "is required")
	}
	d, err := time.Parse(models.DateLayout, raw)
	if err != nil {
		return time.Time{}, domain.Invalid("date", "invalid date format; expected YYYY-MM-DD")
	}
	return d.Add(12 * time.Hour), nil
}

func queryTime(r *http.Request, name string) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, domain.Invalid(name, "expected RFC3339 timestamp")
	}
	return t, nil
}

// effectiveTime reads an optional {"at": ...} body.
func (s *HTTPServer) effectiveTime(r *http.Request) (time.Time, error) {
	if r.ContentLength == 0 {
		return s.now(), nil
	}
	var body atRequest
	if err := decodeJSON(r, &body); err != nil {
		return time.Time{}, err
	}
	if body.At == nil {
		return s.now(), nil
	}
	return *body.At, nil
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			s.log.Warn().Err(err).Msg("readiness check failed")
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *HTTPServer) handleCourts(w http.ResponseWriter, r *http.Request) {
	courts, err := s.svc.GetCourts(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"courts": courts})
}

func (s *HTTPServer) handleSlots(w http.ResponseWriter, r *http.Request) {
	courtID, err := pathID(r, "id")
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	date, err := queryDate(r)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	exclude, err := queryID(r, "exclude")
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	slots, err := s.svc.GenerateSlots(r.Context(), courtID, date, exclude)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"slots": slots})
}

func (s *HTTPServer) handleSchedule(w http.ResponseWriter, r *http.Request) {
	courtID, err := pathID(r, "id")
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	date, err := queryDate(r)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	day, err := s.svc.DaySchedule(r.Context(), courtID, date)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"schedule":     day,
		"availability": day.Availability(),
	})
}

func (s *HTTPServer) handleConflict(w http.ResponseWriter, r *http.Request) {
	courtID, err := pathID(r, "id")
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	start, err := queryTime(r, "start")
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	end, err := queryTime(r, "end")
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	exclude, err := queryID(r, "exclude")
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	conflict, err := s.svc.Conflict(r.Context(), courtID, start, end, exclude)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	resp := map[string]any{"conflict": conflict != nil}
	if conflict != nil {
		resp["reservation_id"] = conflict.ReservationID
		resp["start"] = conflict.Start
		resp["end"] = conflict.End
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleQuote(w http.ResponseWriter, r *http.Request) {
	courtID, err := pathID(r, "id")
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	var body slotsRequest
	if err := decodeJSON(r, &body); err != nil {
		s.writeServiceError(w, err)
		return
	}

	totals, err := s.svc.Quote(r.Context(), courtID, body.Slots, body.Items)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, totals)
}

func (s *HTTPServer) handleCreateReservation(w http.ResponseWriter, r *http.Request) {
	var req reservation.Request
	if err := decodeJSON(r, &req); err != nil {
		s.writeServiceError(w, err)
		return
	}
	res, err := s.svc.CreateReservation(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *HTTPServer) handleGetReservation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	res, err := s.svc.GetReservation(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) handleTotals(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	totals, err := s.svc.ReservationTotals(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, totals)
}

func (s *HTTPServer) handleReschedule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	var body slotsRequest
	if err := decodeJSON(r, &body); err != nil {
		s.writeServiceError(w, err)
		return
	}
	res, err := s.svc.RescheduleReservation(r.Context(), id, body.Slots)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	at, err := s.effectiveTime(r)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	plan, err := s.svc.CancelReservation(r.Context(), id, at)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (s *HTTPServer) handleNoShow(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	at, err := s.effectiveTime(r)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	plan, err := s.svc.MarkNoShow(r.Context(), id, at)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (s *HTTPServer) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	at, err := s.effectiveTime(r)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	res, err := s.svc.CheckIn(r.Context(), id, at)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) handleSaveDraft(w http.ResponseWriter, r *http.Request) {
	var draft models.Voucher
	if err := decodeJSON(r, &draft); err != nil {
		s.writeServiceError(w, err)
		return
	}
	saved, err := s.svc.SaveDraft(r.Context(), &draft)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *HTTPServer) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	draft, err := s.svc.GetDraft(r.Context(), r.PathValue("draftID"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

func (s *HTTPServer) handleDiscardDraft(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DiscardDraft(r.Context(), r.PathValue("draftID")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleConfirmDraft(w http.ResponseWriter, r *http.Request) {
	v, err := s.svc.ConfirmVoucher(r.Context(), r.PathValue("draftID"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (s *HTTPServer) handleEditVoucher(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	var body itemsRequest
	if err := decodeJSON(r, &body); err != nil {
		s.writeServiceError(w, err)
		return
	}
	v, err := s.svc.EditVoucherItems(r.Context(), id, body.Items, queryBool(r, "override"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *HTTPServer) handleCancelVoucher(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	v, err := s.svc.CancelVoucher(r.Context(), id, queryBool(r, "override"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *HTTPServer) handleRecordInvoice(w http.ResponseWriter, r *http.Request) {
	var inv models.Invoice
	if err := decodeJSON(r, &inv); err != nil {
		s.writeServiceError(w, err)
		return
	}
	saved, err := s.svc.RecordInvoice(r.Context(), &inv)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (s *HTTPServer) handleSettleInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	inv, err := s.svc.SettleInvoice(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

// handleExport streams the day workbook, or stores it in the export
// directory when save=true.
func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	facilityID, err := pathID(r, "id")
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	date, err := queryDate(r)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	report, err := s.svc.DayReport(r.Context(), facilityID, date)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	if queryBool(r, "save") {
		path, err := s.exporter.ExportDay(report)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"path": path})
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(facilityID, report.Date)))
	if err := s.exporter.WriteDay(w, report); err != nil {
		s.log.Error().Err(err).Int64("facility_id", facilityID).Msg("export write failed")
	}
}
