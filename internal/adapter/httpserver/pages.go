package httpserver

import (
	"fmt"
	"html/template"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pscheid92/abrenfund/internal/domain"
	"github.com/pscheid92/abrenfund/internal/listing"
	"github.com/pscheid92/abrenfund/internal/validation"
)

var templateFuncs = template.FuncMap{
	"money": func(v float64) string { return formatMoney(v) },
	"date":  func(t time.Time) string { return t.Format("Jan 2, 2006") },
	"seconds": func(d time.Duration) int {
		return int((d + time.Second - 1) / time.Second)
	},
	"first": func(errs map[string][]string, field string) string {
		if msgs := errs[field]; len(msgs) > 0 {
			return msgs[0]
		}
		return ""
	},
}

// formatMoney renders 12345.5 as "12,345.50".
func formatMoney(v float64) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	whole, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := b.String() + "." + frac
	if neg {
		return "-" + out
	}
	return out
}

// pageData merges the values every page template expects into data.
func (s *Server) pageData(c echo.Context, title string, data map[string]any) map[string]any {
	if data == nil {
		data = make(map[string]any)
	}
	data["Title"] = title
	data["CSRF"], _ = c.Get(middleware.DefaultCSRFConfig.ContextKey).(string)
	if user, ok := c.Get(ctxUser).(*domain.UserSummary); ok {
		data["User"] = user
	}
	if v := visitorFrom(c); v != nil {
		data["Flashes"] = v.Flashes()
	}
	return data
}

func (s *Server) page(c echo.Context, status int, name, title string, data map[string]any) error {
	return s.renderTemplate(c, status, name, s.pageData(c, title, data))
}

// formValues reads a urlencoded form into validation.Values, keeping the
// first value of each field.
func formValues(c echo.Context) (validation.Values, error) {
	params, err := c.FormParams()
	if err != nil {
		return nil, fmt.Errorf("failed to parse form: %w", err)
	}
	values := make(validation.Values, len(params))
	for k, vs := range params {
		if len(vs) > 0 {
			values[k] = vs[0]
		}
	}
	return values, nil
}

// listQuery reads the search, status and sort parameters shared by every table.
func listQuery(c echo.Context, prefix string) (listing.Query, int) {
	page, _ := strconv.Atoi(c.QueryParam(prefix + "page"))
	return listing.Query{
		SearchTerm:   strings.TrimSpace(c.QueryParam(prefix + "q")),
		StatusFilter: c.QueryParam(prefix + "status"),
		SortKey:      listing.ParseSortKey(c.QueryParam(prefix + "sort")),
	}, page
}

func userFrom(c echo.Context) domain.UserSummary {
	if user, ok := c.Get(ctxUser).(*domain.UserSummary); ok && user != nil {
		return *user
	}
	return domain.UserSummary{}
}

func tokenFrom(c echo.Context) string {
	token, _ := c.Get(ctxToken).(string)
	return token
}

func defaultQuery() listing.Query {
	return listing.Query{StatusFilter: listing.StatusAll, SortKey: listing.SortDefault}
}
