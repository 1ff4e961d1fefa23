package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"aide/internal/database/milvus"
	"aide/internal/database/mysql"
	redisdb "aide/internal/database/redis"
)

// Health probes the backing stores. Backends left nil were not configured
// and are omitted from the report rather than counted as failures.
type Health struct {
	DB     *gorm.DB
	Vector *milvus.Client
	Cache  *goredis.Client
}

// Handler reports per-backend status. Any failing backend turns the
// response into a 503 so a load balancer can drain the instance.
func (h *Health) Handler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	report := gin.H{}
	check := func(name string, err error) {
		if err != nil {
			report[name] = err.Error()
			status = http.StatusServiceUnavailable
			return
		}
		report[name] = "ok"
	}

	if h.DB != nil {
		check("mysql", mysql.HealthCheck(ctx, h.DB))
	}
	if h.Vector != nil {
		check("milvus", h.Vector.HealthCheck(ctx))
	}
	if h.Cache != nil {
		check("redis", redisdb.HealthCheck(ctx, h.Cache))
	}
	c.JSON(status, report)
}
