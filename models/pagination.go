package models

import (
	"encoding/base64"
	"strconv"

	"github.com/mmdatafocus/payroll_bridge/utils"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

type PageInfo struct {
	StartCursor string `json:"startCursor"`
	EndCursor   string `json:"endCursor"`
	HasNextPage *bool  `json:"hasNextPage,omitempty"`
}

type Edge[N any] struct {
	Node   *N     `json:"node"`
	Cursor string `json:"cursor"`
}

type Connection[N any] struct {
	Edges    []Edge[N] `json:"edges"`
	PageInfo PageInfo  `json:"pageInfo"`
}

func EncodeCursor(id int) string {
	return base64.StdEncoding.EncodeToString([]byte(strconv.Itoa(id)))
}

func DecodeCursor(cursor *string) (int, error) {
	if cursor == nil || *cursor == "" {
		return 0, nil
	}
	b, err := base64.StdEncoding.DecodeString(*cursor)
	if err != nil {
		return 0, utils.ValidationError("invalid cursor")
	}
	id, err := strconv.Atoi(string(b))
	if err != nil {
		return 0, utils.ValidationError("invalid cursor")
	}
	return id, nil
}

func pageSize(limit int) int {
	if limit <= 0 {
		return defaultPageSize
	}
	if limit > maxPageSize {
		return maxPageSize
	}
	return limit
}

// fetchPageByIdDesc pages newest-first over dbCtx using the row id as cursor.
func fetchPageByIdDesc[T any](dbCtx *gorm.DB, limit int, after *string, idOf func(*T) int) (*Connection[T], error) {
	limit = pageSize(limit)
	afterId, err := DecodeCursor(after)
	if err != nil {
		return nil, err
	}
	if afterId > 0 {
		dbCtx = dbCtx.Where("id < ?", afterId)
	}

	nodes := make([]*T, 0)
	if err := dbCtx.Order("id DESC").Limit(limit + 1).Find(&nodes).Error; err != nil {
		return nil, utils.DBError(err, "page")
	}

	hasNextPage := len(nodes) > limit
	if hasNextPage {
		nodes = nodes[:limit]
	}
	conn := &Connection[T]{Edges: make([]Edge[T], 0, len(nodes))}
	for _, node := range nodes {
		conn.Edges = append(conn.Edges, Edge[T]{Node: node, Cursor: EncodeCursor(idOf(node))})
	}
	conn.PageInfo.HasNextPage = &hasNextPage
	if len(conn.Edges) > 0 {
		conn.PageInfo.StartCursor = conn.Edges[0].Cursor
		conn.PageInfo.EndCursor = conn.Edges[len(conn.Edges)-1].Cursor
	}
	return conn, nil
}
