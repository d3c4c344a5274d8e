package web

import (
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/render"
	"github.com/gomphodon/gomphodon/db"
	"github.com/gomphodon/gomphodon/federation"
	"github.com/gomphodon/gomphodon/util"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Deps carries the federation components the router dispatches to.
type Deps struct {
	Verifier *federation.Verifier
	Inbox    *federation.Inbox
	Outbox   *federation.Outbox
	Backfill *federation.Backfiller
}

func Router(conf *util.AppConfig, deps *Deps) error {
	log.Printf("Starting web server on %s:%d", conf.Conf.Host, conf.Conf.HttpPort)
	g := gin.Default()
	g.Use(gzip.Gzip(gzip.DefaultCompression))

	// Global rate limiter: 10 requests per second per IP, burst of 20
	globalLimiter := NewRateLimiter(rate.Limit(10), 20)
	g.Use(RateLimitMiddleware(globalLimiter))

	// Public timeline
	g.GET("/timeline", func(c *gin.Context) {
		err, views := GetPublicTimeline()
		if err != nil {
			c.JSON(500, gin.H{"error": "could not load timeline"})
			return
		}
		c.JSON(200, views)
	})

	// Statuses of a local account, anonymous view
	g.GET("/users/:username/statuses", func(c *gin.Context) {
		err, views := GetAccountStatuses(c.Param("username"))
		if err != nil {
			c.JSON(404, gin.H{"error": "account not found"})
			return
		}
		c.JSON(200, views)
	})

	// Home feed of a local account
	g.GET("/home/:username", func(c *gin.Context) {
		err, views := GetHomeTimeline(c.Param("username"), conf)
		if err != nil {
			c.JSON(404, gin.H{"error": "account not found"})
			return
		}
		c.JSON(200, views)
	})

	// Account registration, disabled on closed instances
	g.POST("/accounts", func(c *gin.Context) {
		if conf.Conf.Closed {
			c.JSON(403, gin.H{"error": "this instance is closed for registration"})
			return
		}

		var req struct {
			Username string `json:"username"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || req.Username == "" {
			c.JSON(400, gin.H{"error": "username is required"})
			return
		}

		username := util.NormalizeInput(req.Username)
		if err := db.GetDB().CreateAccByUsername(username, util.GeneratePemKeypair()); err != nil {
			c.JSON(409, gin.H{"error": "could not create account"})
			return
		}
		c.JSON(201, gin.H{"username": username})
	})

	// Publish a status from a local account
	g.POST("/users/:username/statuses", func(c *gin.Context) {
		var req struct {
			Content        string `json:"content"`
			Visibility     string `json:"visibility"`
			ContentWarning string `json:"content_warning"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || req.Content == "" {
			c.JSON(400, gin.H{"error": "content is required"})
			return
		}

		err, views := PublishStatus(c.Param("username"), req.Content, req.Visibility, req.ContentWarning, conf, deps)
		if err != nil {
			c.JSON(422, gin.H{"error": "could not publish status"})
			return
		}
		c.JSON(201, views)
	})

	// RSS Feed
	g.GET("/feed", func(c *gin.Context) {

		c.Header("Content-Type", "application/xml; charset=utf-8")

		username := c.Query("username")
		rss, err := GetRSS(conf, username)
		if err != nil {
			c.Render(404, render.String{Format: ""})
		} else {
			c.Render(200, render.String{Format: rss})
		}
	})

	g.GET("/feed/:id", func(c *gin.Context) {
		c.Header("Content-Type", "application/xml; charset=utf-8")
		name := c.Param("id")
		feedId, err := uuid.Parse(name)
		if err != nil {
			c.Render(404, render.String{Format: ""})
			return
		}

		rssItem, err := GetRSSItem(conf, feedId)
		if err != nil {
			c.Render(404, render.String{Format: ""})
		} else {
			c.Render(200, render.String{Format: rssItem})
		}
	})

	// Endpoints for the ActivityPub functionality
	if conf.Conf.WithAp {
		// Stricter rate limit for ActivityPub endpoints: 5 req/sec per IP
		apLimiter := NewRateLimiter(rate.Limit(5), 10)

		// Max 1MB request body size for ActivityPub activities
		maxBodySize := MaxBytesMiddleware(1 * 1024 * 1024) // 1MB

		// Serve individual statuses as ActivityPub objects
		g.GET("/statuses/:id", func(c *gin.Context) {
			c.Header("Content-Type", "application/activity+json; charset=utf-8")

			statusId, err := uuid.Parse(c.Param("id"))
			if err != nil {
				c.JSON(404, gin.H{"error": "Invalid status ID"})
				return
			}

			err, status := GetStatusObject(statusId, conf)
			if err != nil {
				c.JSON(404, gin.H{"error": "Status not found"})
			} else {
				c.Render(200, render.String{Format: status})
			}
		})

		g.GET("/users/:username", func(c *gin.Context) {

			c.Header("Content-Type", "application/activity+json; charset=utf-8")
			err, actor := GetActor(c.Param("username"), conf)
			if err != nil {
				c.Render(404, render.String{Format: actor})
			} else {
				c.Render(200, render.String{Format: actor})
			}
		})

		// Inbox is the only route behind the signature check
		g.POST("/users/:username/inbox",
			RateLimitMiddleware(apLimiter), maxBodySize, deps.Verifier.Middleware(),
			func(c *gin.Context) {
				log.Printf("POST /users/%s/inbox", c.Param("username"))
				deps.Inbox.Handle(c)
			})

		g.GET("/users/:username/outbox", func(c *gin.Context) {
			c.Header("Content-Type", "application/activity+json; charset=utf-8")
			page := ParsePageParam(c.Query("page"))
			err, outbox := GetOutbox(c.Param("username"), page, conf)
			if err != nil {
				c.Render(404, render.String{Format: "{}"})
			} else {
				c.Render(200, render.String{Format: outbox})
			}
		})

		g.GET("/users/:username/followers", func(c *gin.Context) {
			c.Header("Content-Type", "application/activity+json; charset=utf-8")
			err, followers := GetFollowersCollection(c.Param("username"), conf)
			if err != nil {
				c.Render(404, render.String{Format: "{}"})
			} else {
				c.Render(200, render.String{Format: followers})
			}
		})

		g.GET("/users/:username/following", func(c *gin.Context) {
			c.Header("Content-Type", "application/activity+json; charset=utf-8")
			err, following := GetFollowingCollection(c.Param("username"), conf)
			if err != nil {
				c.Render(404, render.String{Format: "{}"})
			} else {
				c.Render(200, render.String{Format: following})
			}
		})

		g.GET("/.well-known/webfinger", func(c *gin.Context) {
			c.Header("Content-Type", "application/json; charset=utf-8")

			resource := c.Query("resource")
			if resource == "" || !strings.HasPrefix(resource, "acct:") {
				c.Render(404, render.String{Format: GetWebFingerNotFound()})
			} else {
				resource = strings.TrimPrefix(resource, "acct:")
				resource = strings.TrimSuffix(resource, fmt.Sprintf("@%s", conf.Conf.SslDomain))
				err, resp := GetWebfinger(resource, conf)
				if err != nil {
					c.Render(404, render.String{Format: GetWebFingerNotFound()})
				} else {
					c.Render(200, render.String{Format: resp})
				}
			}
		})

		// Follow a remote actor on behalf of a local account
		g.POST("/follow", func(c *gin.Context) {
			var req struct {
				Username string `json:"username"`
				Target   string `json:"target"`
			}
			if err := c.ShouldBindJSON(&req); err != nil || req.Username == "" || req.Target == "" {
				c.JSON(400, gin.H{"error": "username and target are required"})
				return
			}

			err, account := db.GetDB().ReadAccByUsername(req.Username)
			if err != nil {
				c.JSON(404, gin.H{"error": "account not found"})
				return
			}

			if err := deps.Outbox.SendFollow(c.Request.Context(), account, req.Target); err != nil {
				log.Printf("Follow %s failed: %v", req.Target, err)
				c.JSON(502, gin.H{"error": "could not follow target"})
				return
			}
			c.Status(http.StatusAccepted)
		})

		// Kick off a shallow history backfill for a searched actor
		g.POST("/search", func(c *gin.Context) {
			var req struct {
				Target string `json:"target"`
			}
			if err := c.ShouldBindJSON(&req); err != nil || req.Target == "" {
				c.JSON(400, gin.H{"error": "target is required"})
				return
			}

			deps.Backfill.TriggerAsync(req.Target, federation.BackfillSearch)
			c.Status(http.StatusAccepted)
		})
	}

	err := g.Run(fmt.Sprintf(":%d", conf.Conf.HttpPort))
	if err != nil {
		return err
	}
	return nil
}
