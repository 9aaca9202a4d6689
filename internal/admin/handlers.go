// Package admin exposes the administrative operations of spec.md §6
// (add_static, remove, remove_range, flush, foreach/foreach_session) over
// a local chi-routed HTTP surface, for operators and integration tests.
// It is deliberately not the netlink/gRPC control-plane protocol a real
// user-space control client would speak — that wire format stays out of
// scope, per spec.md's non-goals.
package admin

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/netip"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dantte-lp/nat64d/internal/natdb"
)

// defaultPageLimit bounds a single foreach/foreach_session page when the
// caller supplies no limit query parameter.
const defaultPageLimit = 256

// Handler implements the administrative HTTP surface against a
// natdb.Database. It holds no state of its own beyond the database
// reference, the same thin-adapter shape as the teacher's server package.
type Handler struct {
	db *natdb.Database
}

// NewHandler builds an admin Handler over db.
func NewHandler(db *natdb.Database) *Handler {
	return &Handler{db: db}
}

// addrPort is the wire shape of a natdb.TransportAddr.
type addrPort struct {
	Addr string `json:"addr"`
	Port uint16 `json:"port"`
}

func (a addrPort) transportAddr() (natdb.TransportAddr, error) {
	addr, err := netip.ParseAddr(a.Addr)
	if err != nil {
		return natdb.TransportAddr{}, err
	}
	return natdb.TransportAddr{Addr: addr, Port: a.Port}, nil
}

func fromTransportAddr(t natdb.TransportAddr) addrPort {
	return addrPort{Addr: t.Addr.String(), Port: t.Port}
}

type bibView struct {
	Src6     addrPort `json:"src6"`
	Src4     addrPort `json:"src4"`
	Proto    string   `json:"proto"`
	IsStatic bool     `json:"is_static"`
}

func fromBIBSnapshot(b natdb.BIBSnapshot) bibView {
	return bibView{
		Src6:     fromTransportAddr(b.Src6),
		Src4:     fromTransportAddr(b.Src4),
		Proto:    b.Proto.String(),
		IsStatic: b.IsStatic,
	}
}

type sessionView struct {
	Dst6      addrPort `json:"dst6"`
	Dst4      addrPort `json:"dst4"`
	State     string   `json:"state"`
	HasStored bool     `json:"has_stored"`
	BIB       bibView  `json:"bib"`
}

func fromSessionSnapshot(s natdb.SessionSnapshot) sessionView {
	return sessionView{
		Dst6:      fromTransportAddr(s.Dst6),
		Dst4:      fromTransportAddr(s.Dst4),
		State:     s.State.String(),
		HasStored: s.HasStored,
		BIB:       fromBIBSnapshot(s.BIB),
	}
}

var errUnknownProtocol = errors.New("unknown protocol, want udp, tcp or icmp")

func (h *Handler) tableFromPath(r *http.Request) (*natdb.Table, error) {
	switch chi.URLParam(r, "proto") {
	case "udp":
		return h.db.UDP(), nil
	case "tcp":
		return h.db.TCP(), nil
	case "icmp":
		return h.db.ICMP(), nil
	default:
		return nil, errUnknownProtocol
	}
}

// AddStatic handles POST /v1/{proto}/static.
func (h *Handler) AddStatic(w http.ResponseWriter, r *http.Request) {
	table, err := h.tableFromPath(r)
	if err != nil {
		fail(w, http.StatusNotFound, err)
		return
	}

	var req struct {
		Src6 addrPort `json:"src6"`
		Src4 addrPort `json:"src4"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, err)
		return
	}

	src6, err := req.Src6.transportAddr()
	if err != nil {
		fail(w, http.StatusBadRequest, err)
		return
	}
	src4, err := req.Src4.transportAddr()
	if err != nil {
		fail(w, http.StatusBadRequest, err)
		return
	}

	bib, err := table.AddStatic(src6, src4)
	if err != nil {
		fail(w, http.StatusConflict, err)
		return
	}
	ok(w, fromBIBSnapshot(bib))
}

// Remove handles DELETE /v1/{proto}/bib.
func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	table, err := h.tableFromPath(r)
	if err != nil {
		fail(w, http.StatusNotFound, err)
		return
	}

	var req struct {
		Src6 addrPort `json:"src6"`
		Src4 addrPort `json:"src4"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, err)
		return
	}

	src6, err := req.Src6.transportAddr()
	if err != nil {
		fail(w, http.StatusBadRequest, err)
		return
	}
	src4, err := req.Src4.transportAddr()
	if err != nil {
		fail(w, http.StatusBadRequest, err)
		return
	}

	if err := table.Remove(src6, src4); err != nil {
		fail(w, http.StatusNotFound, err)
		return
	}
	ok(w, nil)
}

// RemoveRange handles DELETE /v1/{proto}/range.
func (h *Handler) RemoveRange(w http.ResponseWriter, r *http.Request) {
	table, err := h.tableFromPath(r)
	if err != nil {
		fail(w, http.StatusNotFound, err)
		return
	}

	var req struct {
		Lo addrPort `json:"lo"`
		Hi addrPort `json:"hi"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, err)
		return
	}

	lo, err := req.Lo.transportAddr()
	if err != nil {
		fail(w, http.StatusBadRequest, err)
		return
	}
	hi, err := req.Hi.transportAddr()
	if err != nil {
		fail(w, http.StatusBadRequest, err)
		return
	}

	n := table.RemoveRange(lo, hi)
	ok(w, map[string]int{"removed": n})
}

// Flush handles POST /v1/{proto}/flush.
func (h *Handler) Flush(w http.ResponseWriter, r *http.Request) {
	table, err := h.tableFromPath(r)
	if err != nil {
		fail(w, http.StatusNotFound, err)
		return
	}
	n := table.Flush()
	ok(w, map[string]int{"removed": n})
}

// bibsPage handles GET /v1/{proto}/bibs?offset_addr=...&offset_port=...&limit=...
func (h *Handler) bibsPage(w http.ResponseWriter, r *http.Request) {
	table, err := h.tableFromPath(r)
	if err != nil {
		fail(w, http.StatusNotFound, err)
		return
	}

	start, inclusive, err := parseOffset(r)
	if err != nil {
		fail(w, http.StatusBadRequest, err)
		return
	}
	limit := parseLimit(r)

	bibs := make([]bibView, 0, limit)
	table.ForEach(start, inclusive, func(b natdb.BIBSnapshot) bool {
		if len(bibs) >= limit {
			return false
		}
		bibs = append(bibs, fromBIBSnapshot(b))
		return true
	})
	ok(w, bibs)
}

// sessionsPage handles GET /v1/{proto}/sessions?src4_addr=...&src4_port=...&offset_addr=...&offset_port=...&limit=...
func (h *Handler) sessionsPage(w http.ResponseWriter, r *http.Request) {
	table, err := h.tableFromPath(r)
	if err != nil {
		fail(w, http.StatusNotFound, err)
		return
	}

	src4Addr, errA := netip.ParseAddr(r.URL.Query().Get("src4_addr"))
	src4Port, errP := strconv.ParseUint(r.URL.Query().Get("src4_port"), 10, 16)
	if errA != nil || errP != nil {
		fail(w, http.StatusBadRequest, errors.New("src4_addr and src4_port are required"))
		return
	}
	src4 := natdb.TransportAddr{Addr: src4Addr, Port: uint16(src4Port)}

	start, inclusive, err := parseOffset(r)
	if err != nil {
		fail(w, http.StatusBadRequest, err)
		return
	}
	limit := parseLimit(r)

	sessions := make([]sessionView, 0, limit)
	found := table.ForEachSession(src4, start, inclusive, func(s natdb.SessionSnapshot) bool {
		if len(sessions) >= limit {
			return false
		}
		sessions = append(sessions, fromSessionSnapshot(s))
		return true
	})
	if !found {
		fail(w, http.StatusNotFound, natdb.ErrNoSuchEntry)
		return
	}
	ok(w, sessions)
}

func parseOffset(r *http.Request) (natdb.TransportAddr, bool, error) {
	q := r.URL.Query()
	addrStr := q.Get("offset_addr")
	if addrStr == "" {
		return natdb.TransportAddr{}, true, nil
	}
	addr, err := netip.ParseAddr(addrStr)
	if err != nil {
		return natdb.TransportAddr{}, false, err
	}
	port, err := strconv.ParseUint(q.Get("offset_port"), 10, 16)
	if err != nil {
		return natdb.TransportAddr{}, false, err
	}
	// A supplied offset resumes strictly after the last seen entry.
	return natdb.TransportAddr{Addr: addr, Port: uint16(port)}, false, nil
}

func parseLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		return defaultPageLimit
	}
	return limit
}
