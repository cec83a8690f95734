package http

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/couchcryptid/brsi-pipeline/internal/domain"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type api struct {
	repo         Repository
	monthlyTable string
	dailyTable   string
	logger       *slog.Logger
}

type pairParams struct {
	Origin  string `validate:"required,alpha,max=3"`
	Partner string `validate:"required,alpha,max=3"`
}

type monthlyParams struct {
	pairParams
	StartYear  int `validate:"required,min=1979"`
	StartMonth int `validate:"required,min=1,max=12"`
	EndYear    int `validate:"required,min=1979"`
	EndMonth   int `validate:"required,min=1,max=12"`
}

type dateParams struct {
	pairParams
	StartDate string `validate:"required,datetime=2006-01-02"`
	EndDate   string `validate:"required,datetime=2006-01-02"`
}

type latestResponse struct {
	Origin         string                   `json:"actor1CountryCode"`
	Partner        string                   `json:"actor2CountryCode"`
	StartDate      string                   `json:"startDate"`
	EndDate        string                   `json:"endDate"`
	AggregateLevel domain.AggregateLevel    `json:"aggregateLevel"`
	NumRecords     int                      `json:"numRecords"`
	Records        []domain.AggregateRecord `json:"records"`
}

var errMissingParams = errors.New("missing required parameters")

func readPair(r *http.Request) pairParams {
	q := r.URL.Query()
	return pairParams{
		Origin:  strings.ToUpper(q.Get("actor1CountryCode")),
		Partner: strings.ToUpper(q.Get("actor2CountryCode")),
	}
}

func (p pairParams) pair() domain.Pair {
	return domain.Pair{Origin: p.Origin, Partner: p.Partner}
}

// handleMonthly serves GET /api/brsi.
func (a *api) handleMonthly(w http.ResponseWriter, r *http.Request) {
	p := monthlyParams{pairParams: readPair(r)}
	q := r.URL.Query()
	for _, f := range []struct {
		key string
		dst *int
	}{
		{"startYear", &p.StartYear},
		{"startMonth", &p.StartMonth},
		{"endYear", &p.EndYear},
		{"endMonth", &p.EndMonth},
	} {
		v := q.Get(f.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s", f.key))
			return
		}
		*f.dst = n
	}
	if err := validate.Struct(p); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	rng := domain.MonthRange{
		Pair:      p.pair(),
		StartYear: p.StartYear, StartMonth: p.StartMonth,
		EndYear: p.EndYear, EndMonth: p.EndMonth,
	}
	rows, err := a.repo.MonthlyRecords(r.Context(), a.monthlyTable, rng)
	if err != nil {
		a.internalError(w, r, err)
		return
	}
	if len(rows) == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "No records found"})
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// handleHistory serves GET /api/brsi/history.
func (a *api) handleHistory(w http.ResponseWriter, r *http.Request) {
	rng, _, ok := readDateRange(w, r)
	if !ok {
		return
	}
	rows, err := a.repo.DailyRecords(r.Context(), a.dailyTable, rng)
	if err != nil {
		a.internalError(w, r, err)
		return
	}
	if len(rows) == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "No records found"})
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// handleLatest serves GET /api/brsi/latest/{aggregateLevel}.
func (a *api) handleLatest(w http.ResponseWriter, r *http.Request) {
	level, ok := domain.ParseAggregateLevel(chi.URLParam(r, "aggregateLevel"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid aggregate level")
		return
	}
	rng, p, ok := readDateRange(w, r)
	if !ok {
		return
	}
	records, err := a.repo.Aggregate(r.Context(), a.dailyTable, level, rng)
	if err != nil {
		a.internalError(w, r, err)
		return
	}
	if records == nil {
		records = []domain.AggregateRecord{}
	}
	writeJSON(w, http.StatusOK, latestResponse{
		Origin:         p.Origin,
		Partner:        p.Partner,
		StartDate:      p.StartDate,
		EndDate:        p.EndDate,
		AggregateLevel: level,
		NumRecords:     len(records),
		Records:        records,
	})
}

// readDateRange validates the pair and date query parameters, writing a 400
// response and returning ok=false when they are unusable.
func readDateRange(w http.ResponseWriter, r *http.Request) (domain.DateRange, dateParams, bool) {
	q := r.URL.Query()
	p := dateParams{
		pairParams: readPair(r),
		StartDate:  q.Get("startDate"),
		EndDate:    q.Get("endDate"),
	}
	if err := validate.Struct(p); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return domain.DateRange{}, p, false
	}
	start, _ := time.Parse(domain.DateLayout, p.StartDate)
	end, _ := time.Parse(domain.DateLayout, p.EndDate)
	if start.After(end) {
		writeError(w, http.StatusBadRequest, "start date must not be after end date")
		return domain.DateRange{}, p, false
	}
	return domain.DateRange{Pair: p.pair(), Start: start, End: end}, p, true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			return errMissingParams.Error()
		}
	}
	fe := verrs[0]
	if fe.Tag() == "datetime" {
		return "invalid date format"
	}
	return fmt.Sprintf("invalid %s", fe.Field())
}

func (a *api) internalError(w http.ResponseWriter, r *http.Request, err error) {
	a.logger.Error("api request failed", "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}
