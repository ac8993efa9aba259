package server

import (
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	cache "github.com/krisalay/clinic-swr-cache"
	"github.com/krisalay/clinic-swr-cache/internal/adminapi"
	"github.com/krisalay/clinic-swr-cache/key"
)

// ResourceResponse is the envelope of every cached read. A response can
// carry both data and an error: the data is the last known-good value and
// the error is the failure of its latest revalidation.
type ResourceResponse struct {
	Data      any       `json:"data"`
	Stale     bool      `json:"stale"`
	Error     string    `json:"error,omitempty"`
	FetchedAt time.Time `json:"fetchedAt"`
	Source    string    `json:"source"`
}

// reserved query parameters that are not list filters
var reservedParams = map[string]bool{
	"page": true, "limit": true, "search": true, "status": true, "refresh": true,
}

func listQuery(c *gin.Context) (adminapi.ListQuery, error) {
	var q adminapi.ListQuery
	var err error
	if v := c.Query("page"); v != "" {
		if q.Page, err = strconv.Atoi(v); err != nil || q.Page < 1 {
			return q, errInvalidParam("page")
		}
	}
	if v := c.Query("limit"); v != "" {
		if q.Limit, err = strconv.Atoi(v); err != nil || q.Limit < 1 || q.Limit > 500 {
			return q, errInvalidParam("limit")
		}
	}
	q.Search = c.Query("search")
	q.Status = c.Query("status")

	for name, values := range c.Request.URL.Query() {
		if reservedParams[name] || len(values) == 0 {
			continue
		}
		if q.Extra == nil {
			q.Extra = map[string]string{}
		}
		q.Extra[name] = values[0]
	}
	return q, nil
}

type errInvalidParam string

func (e errInvalidParam) Error() string { return "invalid query parameter: " + string(e) }

func cacheHeader(r cache.Result) string {
	switch {
	case r.Source == cache.SourceNetwork:
		return "miss"
	case r.IsStale:
		return "stale"
	default:
		return "hit"
	}
}

func (s *Server) getResource(family string) gin.HandlerFunc {
	return func(c *gin.Context) {
		q, err := listQuery(c)
		if err != nil {
			s.respondBadRequest(c, err.Error())
			return
		}
		force, _ := strconv.ParseBool(c.Query("refresh"))

		res, err := s.store.Fetch(c.Request.Context(), family, q, cache.ForceRefreshIf(force))
		if err != nil {
			s.respondError(c, http.StatusNotFound, err.Error(), "NOT_FOUND")
			return
		}
		if !res.OK() {
			s.respondBackendError(c, res.Err)
			return
		}

		out := ResourceResponse{
			Data:      res.Value,
			Stale:     res.IsStale,
			FetchedAt: res.FetchedAt,
			Source:    string(res.Source),
		}
		if res.Err != nil {
			out.Error = res.Err.Error()
		}
		c.Header("X-Cache", cacheHeader(res))
		c.JSON(http.StatusOK, out)
	}
}

//
// ================= MUTATIONS =================
//

func (s *Server) createDoctor(c *gin.Context) {
	var in adminapi.DoctorInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.respondBadRequest(c, err.Error())
		return
	}
	d, err := s.store.CreateDoctor(c.Request.Context(), in)
	if err != nil {
		s.respondBackendError(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

func (s *Server) updateDoctor(c *gin.Context) {
	var in adminapi.DoctorInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.respondBadRequest(c, err.Error())
		return
	}
	d, err := s.store.UpdateDoctor(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		s.respondBackendError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (s *Server) deleteDoctor(c *gin.Context) {
	if err := s.store.DeleteDoctor(c.Request.Context(), c.Param("id")); err != nil {
		s.respondBackendError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) createMedicine(c *gin.Context) {
	var in adminapi.MedicineInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.respondBadRequest(c, err.Error())
		return
	}
	m, err := s.store.CreateMedicine(c.Request.Context(), in)
	if err != nil {
		s.respondBackendError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (s *Server) updateMedicine(c *gin.Context) {
	var in adminapi.MedicineInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.respondBadRequest(c, err.Error())
		return
	}
	m, err := s.store.UpdateMedicine(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		s.respondBackendError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (s *Server) updateOrderStatus(c *gin.Context) {
	var in struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		s.respondBadRequest(c, err.Error())
		return
	}
	if !adminapi.ValidOrderStatus(in.Status) {
		s.respondBadRequest(c, "unknown order status: "+in.Status)
		return
	}
	o, err := s.store.UpdateOrderStatus(c.Request.Context(), c.Param("id"), in.Status)
	if err != nil {
		s.respondBackendError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (s *Server) uploadLabReport(c *gin.Context) {
	var in adminapi.LabReportUpload
	if err := c.ShouldBindJSON(&in); err != nil {
		s.respondBadRequest(c, err.Error())
		return
	}
	r, err := s.store.UploadLabReport(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		s.respondBackendError(c, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

func (s *Server) createArticle(c *gin.Context) {
	var in adminapi.ArticleInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.respondBadRequest(c, err.Error())
		return
	}
	a, err := s.store.CreateArticle(c.Request.Context(), in)
	if err != nil {
		s.respondBackendError(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

func (s *Server) payCompensation(c *gin.Context) {
	var in adminapi.Payout
	if err := c.ShouldBindJSON(&in); err != nil {
		s.respondBadRequest(c, err.Error())
		return
	}
	comp, err := s.store.PayCompensation(c.Request.Context(), in)
	if err != nil {
		s.respondBackendError(c, err)
		return
	}
	c.JSON(http.StatusOK, comp)
}

func (s *Server) submitReview(c *gin.Context) {
	var in adminapi.ReviewInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.respondBadRequest(c, err.Error())
		return
	}
	r, err := s.store.SubmitReview(c.Request.Context(), in)
	if err != nil {
		s.respondBackendError(c, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

//
// ================= CACHE ADMINISTRATION =================
//

type invalidateRequest struct {
	Key    string `json:"key"`
	Prefix string `json:"prefix"`
	Family string `json:"family"`
}

// invalidate removes exactly one of: a key, a key prefix or a family.
func (s *Server) invalidate(c *gin.Context) {
	var in invalidateRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		s.respondBadRequest(c, err.Error())
		return
	}

	set := 0
	for _, v := range []string{in.Key, in.Prefix, in.Family} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		s.respondBadRequest(c, "exactly one of key, prefix or family is required")
		return
	}

	var removed int
	switch {
	case in.Key != "":
		if s.cache.Invalidate(in.Key) {
			removed = 1
		}
	case in.Prefix != "":
		removed = s.cache.InvalidateByPrefix(in.Prefix)
	default:
		removed = s.cache.InvalidateFamily(in.Family)
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

func (s *Server) listKeys(c *gin.Context) {
	keys := s.cache.Keys()
	if family := c.Query("family"); family != "" {
		filtered := keys[:0]
		for _, k := range keys {
			if key.InFamily(k, family) {
				filtered = append(filtered, k)
			}
		}
		keys = filtered
	}
	if keys == nil {
		keys = []string{}
	}
	sort.Strings(keys)
	c.JSON(http.StatusOK, gin.H{"keys": keys, "count": len(keys)})
}
