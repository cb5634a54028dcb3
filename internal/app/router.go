package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/bizdesk/bizdesk/internal/audit"
	"github.com/bizdesk/bizdesk/internal/inventory"
	"github.com/bizdesk/bizdesk/internal/invoicing"
	"github.com/bizdesk/bizdesk/internal/lookup"
	"github.com/bizdesk/bizdesk/internal/masterdata"
	"github.com/bizdesk/bizdesk/internal/observability"
	"github.com/bizdesk/bizdesk/internal/payroll"
	"github.com/bizdesk/bizdesk/internal/platform/httpx"
	"github.com/bizdesk/bizdesk/internal/pricing"
	"github.com/bizdesk/bizdesk/internal/procurement"
	"github.com/bizdesk/bizdesk/internal/sales"
	"github.com/bizdesk/bizdesk/internal/sequence"
	"github.com/bizdesk/bizdesk/jobs"
)

// RouterParams groups dependencies for building the HTTP router. Nil
// handlers leave their routes unmounted.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics

	TotalsHandler      *pricing.Handler
	SequenceHandler    *sequence.Handler
	LookupHandler      *lookup.Handler
	MasterDataHandler  *masterdata.Handler
	InventoryHandler   *inventory.Handler
	SalesHandler       *sales.Handler
	InvoicingHandler   *invoicing.Handler
	ProcurementHandler *procurement.Handler
	PayrollHandler     *payroll.Handler
	AuditHandler       *audit.Handler
	JobHandler         *jobs.Handler
}

// NewRouter constructs the chi.Router with BizDesk defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "no route for "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusMethodNotAllowed, "Method Not Allowed", r.Method+" is not supported on "+r.URL.Path)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		if params.TotalsHandler != nil {
			r.Route("/totals", params.TotalsHandler.MountRoutes)
		}
		if params.SequenceHandler != nil {
			r.Route("/sequences", params.SequenceHandler.MountRoutes)
		}
		if params.LookupHandler != nil {
			r.Route("/lookups", params.LookupHandler.MountRoutes)
		}
		if params.MasterDataHandler != nil {
			r.Route("/customers", params.MasterDataHandler.Routes(masterdata.KindCustomer))
			r.Route("/suppliers", params.MasterDataHandler.Routes(masterdata.KindSupplier))
		}
		if params.InventoryHandler != nil {
			r.Route("/items", params.InventoryHandler.MountRoutes)
		}
		if params.SalesHandler != nil {
			r.Route("/quotations", params.SalesHandler.MountQuotations)
			r.Route("/sales-orders", params.SalesHandler.MountOrders)
			r.Route("/sales", params.SalesHandler.MountSales)
		}
		if params.InvoicingHandler != nil {
			r.Route("/invoices", params.InvoicingHandler.MountRoutes)
		}
		if params.ProcurementHandler != nil {
			r.Route("/purchase-orders", params.ProcurementHandler.MountRoutes)
		}
		if params.PayrollHandler != nil {
			r.Route("/employees", params.PayrollHandler.MountEmployees)
			r.Route("/payslips", params.PayrollHandler.MountPayslips)
		}
		if params.AuditHandler != nil {
			r.Route("/audit-logs", params.AuditHandler.MountRoutes)
		}
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
