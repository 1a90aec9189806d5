package models

import (
	"encoding/base64"
	"fmt"
	"strconv"

	"bitbucket.org/mmdatafocus/bloodstock_backend/utils"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

type PageInfo struct {
	StartCursor string `json:"startCursor"`
	EndCursor   string `json:"endCursor"`
	HasNextPage *bool  `json:"hasNextPage,omitempty"`
}

type Cursor interface {
	GetCursor() int
}

type Edge[N any] struct {
	Node   *N     `json:"node"`
	Cursor string `json:"cursor"`
}

func EncodeCursor(id int) string {
	return base64.StdEncoding.EncodeToString([]byte(strconv.Itoa(id)))
}

// DecodeCursor returns 0 for an empty cursor.
func DecodeCursor(cursor string) (int, error) {
	if cursor == "" {
		return 0, nil
	}
	b, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return 0, fmt.Errorf("%w: malformed cursor", ErrValidation)
	}
	id, err := strconv.Atoi(string(b))
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: malformed cursor", ErrValidation)
	}
	return id, nil
}

func clampPageSize(limit int) int {
	if limit <= 0 {
		return defaultPageSize
	}
	if limit > maxPageSize {
		return maxPageSize
	}
	return limit
}

// fetchPageDesc pages dbCtx newest first on idColumn, starting after the row the cursor names.
func fetchPageDesc[T Cursor](dbCtx *gorm.DB, limit int, after string, idColumn string) ([]Edge[T], *PageInfo, error) {
	limit = clampPageSize(limit)
	afterId, err := DecodeCursor(after)
	if err != nil {
		return nil, nil, err
	}
	if afterId > 0 {
		dbCtx = dbCtx.Where(idColumn+" < ?", afterId)
	}

	nodes := make([]*T, 0)
	if err := dbCtx.Order(idColumn + " DESC").Limit(limit + 1).Scan(&nodes).Error; err != nil {
		return nil, nil, err
	}

	hasNextPage := len(nodes) > limit
	if hasNextPage {
		nodes = nodes[:limit]
	}
	edges := make([]Edge[T], 0, len(nodes))
	for _, node := range nodes {
		edges = append(edges, Edge[T]{Node: node, Cursor: EncodeCursor((*node).GetCursor())})
	}

	pageInfo := PageInfo{HasNextPage: utils.NewFalse()}
	if len(edges) > 0 {
		pageInfo = PageInfo{
			StartCursor: edges[0].Cursor,
			EndCursor:   edges[len(edges)-1].Cursor,
			HasNextPage: &hasNextPage,
		}
	}
	return edges, &pageInfo, nil
}
