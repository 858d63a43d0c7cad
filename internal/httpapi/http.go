// Package httpapi exposes the webhook and admin surfaces over net/http.
package httpapi

import (
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"civicbot/config"
	"civicbot/internal/bot"
	"civicbot/internal/civic"
	"civicbot/internal/metrics"
	"civicbot/internal/reports"
	"civicbot/internal/store"
	"civicbot/internal/trends"
)

// Router builds HTTP handlers for /webhook, /api, and /ops.
type Router struct {
	cfg     config.Config
	engine  *bot.Engine
	reports *reports.Service
	store   *store.Store
}

func NewRouter(cfg config.Config, engine *bot.Engine, svc *reports.Service, st *store.Store) *Router {
	return &Router{cfg: cfg, engine: engine, reports: svc, store: st}
}

func (r *Router) Register(mux *http.ServeMux) {
	mux.HandleFunc("/webhook", r.webhook)
	mux.HandleFunc("/api/reports", r.list)
	mux.HandleFunc("/api/reports/", r.reportDetail)
	mux.HandleFunc("/api/stats", r.stats)
	mux.HandleFunc("/api/trends", r.trends)
	mux.HandleFunc("/api/reports.geojson", r.geojson)
	mux.HandleFunc("/api/reports.csv", r.exportCSV)
	mux.HandleFunc("/ops/health", r.health)
	mux.HandleFunc("/ops/status", r.status)
}

// twiml is the messaging-provider response envelope: one reply message
// per inbound webhook call.
type twiml struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message"`
}

func (r *Router) webhook(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := req.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	mediaCount, _ := strconv.Atoi(req.PostFormValue("NumMedia"))
	msg := bot.Message{
		SenderID:   req.PostFormValue("From"),
		Body:       req.PostFormValue("Body"),
		MediaCount: mediaCount,
		MediaURL:   req.PostFormValue("MediaUrl0"),
	}

	text := r.engine.Handle(req.Context(), msg)

	w.Header().Set("Content-Type", "application/xml")
	w.Write([]byte(xml.Header))
	if err := xml.NewEncoder(w).Encode(twiml{Message: text}); err != nil {
		log.Printf("write twiml: %v", err)
	}
}

func (r *Router) list(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	f := store.Filter{
		Status:     civic.Status(q.Get("status")),
		IssueType:  civic.IssueType(q.Get("issue_type")),
		Department: q.Get("department"),
		Search:     q.Get("search"),
	}
	page := intParam(q.Get("page"), 1)
	pageSize := intParam(q.Get("page_size"), 20)
	if pageSize > 100 {
		pageSize = 100
	}

	list, total, err := r.reports.List(req.Context(), f, page, pageSize)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, map[string]any{
		"reports":   list,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// reportDetail serves GET /api/reports/{id} and
// PATCH /api/reports/{id}/status | /api/reports/{id}/priority.
func (r *Router) reportDetail(w http.ResponseWriter, req *http.Request) {
	rest := strings.TrimPrefix(req.URL.Path, "/api/reports/")
	idStr, action, _ := strings.Cut(rest, "/")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id < 1 {
		http.Error(w, "invalid report id", http.StatusBadRequest)
		return
	}

	switch {
	case action == "" && req.Method == http.MethodGet:
		r.get(w, req, id)
	case action == "status" && req.Method == http.MethodPatch:
		r.updateStatus(w, req, id)
	case action == "priority" && req.Method == http.MethodPatch:
		r.updatePriority(w, req, id)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (r *Router) get(w http.ResponseWriter, req *http.Request, id int64) {
	rep, err := r.reports.Get(req.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if rep == nil {
		http.NotFound(w, req)
		return
	}
	respondJSON(w, rep)
}

func (r *Router) updateStatus(w http.ResponseWriter, req *http.Request, id int64) {
	var body struct {
		Status civic.Status `json:"status"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ok, err := r.reports.UpdateStatus(req.Context(), id, body.Status)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !ok {
		http.NotFound(w, req)
		return
	}
	respondJSON(w, map[string]any{"id": id, "status": body.Status})
}

func (r *Router) updatePriority(w http.ResponseWriter, req *http.Request, id int64) {
	var body struct {
		Priority civic.Priority `json:"priority"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ok, err := r.reports.UpdatePriority(req.Context(), id, body.Priority)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !ok {
		http.NotFound(w, req)
		return
	}
	respondJSON(w, map[string]any{"id": id, "priority": body.Priority})
}

func (r *Router) stats(w http.ResponseWriter, req *http.Request) {
	st, err := r.reports.Stats(req.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, st)
}

func (r *Router) trends(w http.ResponseWriter, req *http.Request) {
	days := intParam(req.URL.Query().Get("days"), 7)
	if days > 90 {
		days = 90
	}
	s, err := trends.Compute(req.Context(), r.store, config.Now(), days)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, s)
}

// geojson renders reports with coordinates as a FeatureCollection for the
// map view. Reports without coordinates are skipped.
func (r *Router) geojson(w http.ResponseWriter, req *http.Request) {
	list, _, err := r.reports.List(req.Context(), store.Filter{Status: civic.Status(req.URL.Query().Get("status"))}, 1, 500)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	features := make([]map[string]any, 0, len(list))
	for i := range list {
		rep := &list[i]
		if !rep.HasCoordinates() {
			continue
		}
		features = append(features, map[string]any{
			"type": "Feature",
			"geometry": map[string]any{
				"type":        "Point",
				"coordinates": []float64{*rep.Longitude, *rep.Latitude},
			},
			"properties": map[string]any{
				"id":         rep.ID,
				"issue_type": rep.IssueType,
				"status":     rep.Status,
				"priority":   rep.Priority,
				"location":   rep.LocationText,
				"created_at": rep.CreatedAt.Format(time.RFC3339),
			},
		})
	}
	respondJSON(w, map[string]any{"type": "FeatureCollection", "features": features})
}

func (r *Router) exportCSV(w http.ResponseWriter, req *http.Request) {
	list, _, err := r.reports.List(req.Context(), store.Filter{
		Status:    civic.Status(req.URL.Query().Get("status")),
		IssueType: civic.IssueType(req.URL.Query().Get("issue_type")),
	}, 1, 10000)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="reports.csv"`)
	cw := csv.NewWriter(w)
	cw.Write([]string{"id", "issue_type", "description", "location", "department", "status", "priority", "created_at", "resolved_at"})
	for i := range list {
		rep := &list[i]
		resolved := ""
		if rep.ResolvedAt != nil {
			resolved = rep.ResolvedAt.Format(time.RFC3339)
		}
		cw.Write([]string{
			strconv.FormatInt(rep.ID, 10),
			string(rep.IssueType),
			rep.Description,
			rep.LocationText,
			rep.Department,
			string(rep.Status),
			string(rep.Priority),
			rep.CreatedAt.Format(time.RFC3339),
			resolved,
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		log.Printf("write csv: %v", err)
	}
}

func (r *Router) health(w http.ResponseWriter, req *http.Request) {
	if err := r.store.Health(req.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *Router) status(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, map[string]any{
		"counters": metrics.Snapshot(),
		"workers":  r.cfg.WorkerCount,
	})
}

func intParam(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return def
	}
	return n
}

func respondJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("write json: %v", err)
	}
}
