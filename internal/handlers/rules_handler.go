package handlers

import (
	"net/http"
	"strings"

	"github.com/farazbot/backend/internal/matcher"
	"github.com/farazbot/backend/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RulesHandler exposes the banned word and severe trigger sets
type RulesHandler struct {
	rules  *matcher.Rules
	logger logrus.FieldLogger
}

func NewRulesHandler(rules *matcher.Rules, logger logrus.FieldLogger) *RulesHandler {
	return &RulesHandler{rules: rules, logger: logger}
}

// Register mounts GET/POST/DELETE for both sets under rg
func (h *RulesHandler) Register(rg *gin.RouterGroup) {
	for path, set := range map[string]*matcher.WordSet{
		"/words":    h.rules.Banned,
		"/triggers": h.rules.Severe,
	} {
		rg.GET(path, h.list(set))
		rg.POST(path, h.add(set, path))
		rg.DELETE(path+"/:word", h.remove(set, path))
	}
}

func (h *RulesHandler) list(set *matcher.WordSet) gin.HandlerFunc {
	return func(c *gin.Context) {
		words := set.List()
		c.JSON(http.StatusOK, gin.H{"words": words, "count": len(words)})
	}
}

func (h *RulesHandler) add(set *matcher.WordSet, path string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.WordRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			ErrorResponse(c, http.StatusBadRequest, err.Error())
			return
		}
		word := matcher.Normalize(req.Word)
		if word == "" {
			ErrorResponse(c, http.StatusBadRequest, "word must not be blank")
			return
		}
		if !set.Add(word) {
			c.JSON(http.StatusOK, gin.H{"word": word, "added": false})
			return
		}
		h.logger.WithFields(logrus.Fields{"set": strings.TrimPrefix(path, "/"), "phrase": word}).Info("phrase added via api")
		c.JSON(http.StatusCreated, gin.H{"word": word, "added": true})
	}
}

func (h *RulesHandler) remove(set *matcher.WordSet, path string) gin.HandlerFunc {
	return func(c *gin.Context) {
		word := matcher.Normalize(c.Param("word"))
		if !set.Remove(word) {
			ErrorResponse(c, http.StatusNotFound, "word not found")
			return
		}
		h.logger.WithFields(logrus.Fields{"set": strings.TrimPrefix(path, "/"), "phrase": word}).Info("phrase removed via api")
		c.JSON(http.StatusOK, gin.H{"word": word, "removed": true})
	}
}
