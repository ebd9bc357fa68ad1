package main

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"qrattend/internal/directory"
)

// registerUserRoutes mounts the user directory endpoints on the
// authenticated group.
func registerUserRoutes(g *gin.RouterGroup, dir *directory.Service) {
	g.POST("/users", func(c *gin.Context) {
		var in directory.NewUser
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		user, err := dir.Create(c.Request.Context(), in)
		if err != nil {
			c.JSON(userErrStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, user)
	})

	g.GET("/users", func(c *gin.Context) {
		var (
			users []directory.User
			err   error
		)
		switch {
		case c.Query("q") != "":
			users, err = dir.Search(c.Request.Context(), c.Query("q"))
		case c.Query("active") == "true":
			users, err = dir.Active(c.Request.Context())
		default:
			users, err = dir.All(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"users": users})
	})

	g.GET("/users/:id", func(c *gin.Context) {
		user, err := dir.ByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if user == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusOK, user)
	})

	g.GET("/users/:id/qr", func(c *gin.Context) {
		// The payload text is what an external QR encoder renders.
		user, err := dir.ByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if user == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"payload": user.QRCode})
	})

	g.PUT("/users/:id", func(c *gin.Context) {
		var upd directory.Update
		if err := c.ShouldBindJSON(&upd); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		user, err := dir.UpdateUser(c.Request.Context(), c.Param("id"), upd)
		if err != nil {
			c.JSON(userErrStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, user)
	})

	g.DELETE("/users/:id", func(c *gin.Context) {
		if err := dir.Delete(c.Request.Context(), c.Param("id")); err != nil {
			c.JSON(userErrStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	})

	g.POST("/users/import", func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil || len(body) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "csv body required"})
			return
		}
		res, err := dir.ImportCSV(c.Request.Context(), string(body))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, res)
	})

	g.GET("/users/export", func(c *gin.Context) {
		csv, err := dir.ExportCSV(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		serveCSV(c, "users.csv", csv)
	})
}

func userErrStatus(err error) int {
	var dup *directory.DuplicateIDError
	switch {
	case errors.Is(err, directory.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &dup):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
