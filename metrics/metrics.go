package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "yamato"

// HTTP は HTTP リクエストの計測値です。
type HTTP struct {
	ReqTotal *prometheus.CounterVec
	ReqDur   *prometheus.HistogramVec
	InFlight prometheus.Gauge
}

func NewHTTP(reg prometheus.Registerer) *HTTP {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &HTTP{
		ReqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests handled by the server.",
		}, []string{"method", "route", "status"}),
		ReqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency distribution in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		}, []string{"method", "route"}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_in_flight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
	}
	m.ReqTotal = register(reg, m.ReqTotal)
	m.ReqDur = register(reg, m.ReqDur)
	m.InFlight = register(reg, m.InFlight)
	return m
}

// Middleware はリクエスト件数と所要時間をルートパターン単位で記録します。
func (m *HTTP) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		m.InFlight.Inc()
		start := time.Now()
		next.ServeHTTP(ww, r)
		m.InFlight.Dec()

		route := "unknown"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.ReqTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.ReqDur.WithLabelValues(r.Method, route).Observe(float64(time.Since(start)) / float64(time.Millisecond))
	})
}

// Domain は入出庫伝票の業務イベントの計測値です。メソッドは nil でも安全に呼べます。
type Domain struct {
	SlipsSaved   *prometheus.CounterVec
	LinesSaved   *prometheus.CounterVec
	LinesSkipped prometheus.Counter
	Calculations prometheus.Counter
	UnitReloads  *prometheus.CounterVec
	ClientsAdded prometheus.Counter
	SlipsDeleted prometheus.Counter
}

func NewDomain(reg prometheus.Registerer) *Domain {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	d := &Domain{
		SlipsSaved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slips_saved_total",
			Help:      "Number of in/out slips saved, by transaction type.",
		}, []string{"type"}),
		LinesSaved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slip_lines_saved_total",
			Help:      "Number of slip lines persisted, by transaction type.",
		}, []string{"type"}),
		LinesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slip_lines_skipped_total",
			Help:      "Submitted lines skipped for an empty JAN or zero quantity.",
		}),
		Calculations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slip_calculations_total",
			Help:      "Server-side slip recalculations.",
		}),
		UnitReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unit_master_reloads_total",
			Help:      "Unit master reload attempts by result.",
		}, []string{"result"}),
		ClientsAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clients_registered_total",
			Help:      "Clients registered from the slip screen.",
		}),
		SlipsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slips_deleted_total",
			Help:      "Slips deleted.",
		}),
	}
	d.SlipsSaved = register(reg, d.SlipsSaved)
	d.LinesSaved = register(reg, d.LinesSaved)
	d.LinesSkipped = register(reg, d.LinesSkipped)
	d.Calculations = register(reg, d.Calculations)
	d.UnitReloads = register(reg, d.UnitReloads)
	d.ClientsAdded = register(reg, d.ClientsAdded)
	d.SlipsDeleted = register(reg, d.SlipsDeleted)
	return d
}

func (d *Domain) SlipSaved(txType int, lines, skipped int) {
	if d == nil {
		return
	}
	label := strconv.Itoa(txType)
	d.SlipsSaved.WithLabelValues(label).Inc()
	d.LinesSaved.WithLabelValues(label).Add(float64(lines))
	d.LinesSkipped.Add(float64(skipped))
}

func (d *Domain) Calculated() {
	if d != nil {
		d.Calculations.Inc()
	}
}

func (d *Domain) UnitReload(err error) {
	if d == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	d.UnitReloads.WithLabelValues(result).Inc()
}

func (d *Domain) ClientAdded() {
	if d != nil {
		d.ClientsAdded.Inc()
	}
}

func (d *Domain) SlipDeleted() {
	if d != nil {
		d.SlipsDeleted.Inc()
	}
}

// register は登録済みなら既存のコレクタを返します。
func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}
