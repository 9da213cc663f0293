package store

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/zedsoft/identity-store/internal/domain/entity"
	"github.com/zedsoft/identity-store/pkg/helpers"
)

const userCachePrefix = "user:cache:"

func (s *UserStore) cacheTTL() time.Duration {
	if s.CacheTTL > 0 {
		return s.CacheTTL
	}
	return 5 * time.Minute
}

func (s *UserStore) cachedUser(ctx context.Context, id string) (*entity.User, bool) {
	if s.Redis == nil {
		return nil, false
	}
	var u entity.User
	ok, err := helpers.RedisGetJSON(ctx, s.Redis, userCachePrefix+id, &u)
	if err != nil {
		if s.Logger != nil {
			s.Logger.WithError(err).WithField("user_id", id).Warn("redis get failed")
		}
		return nil, false
	}
	if !ok {
		return nil, false
	}
	return &u, true
}

func (s *UserStore) cacheUser(ctx context.Context, u *entity.User) {
	if s.Redis == nil {
		return
	}
	if err := helpers.RedisSetJSON(ctx, s.Redis, userCachePrefix+u.ID, u, s.cacheTTL()); err != nil && s.Logger != nil {
		s.Logger.WithError(err).WithField("user_id", u.ID).Warn("redis set failed")
	}
}

func (s *UserStore) invalidateCache(ctx context.Context, id string) {
	if s.Redis == nil || id == "" {
		return
	}
	if err := helpers.RedisDel(ctx, s.Redis, userCachePrefix+id); err != nil && s.Logger != nil {
		s.Logger.WithError(err).WithField("user_id", id).Warn("redis del failed")
	}
}

func (s *UserStore) indexUser(ctx context.Context, u *entity.User) {
	if s.ES == nil || s.ESUsersIndex == "" {
		return
	}
	doc := map[string]any{
		"id":         u.ID,
		"username":   u.UserName,
		"email":      u.Email,
		"created_at": u.CreatedAt.Format(time.RFC3339Nano),
		"updated_at": u.UpdatedAt.Format(time.RFC3339Nano),
	}
	b, _ := json.Marshal(doc)
	req := esapi.IndexRequest{Index: s.ESUsersIndex, DocumentID: u.ID, Body: strings.NewReader(string(b)), Refresh: "false"}
	c, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := req.Do(c, s.ES)
	if err != nil {
		if s.Logger != nil {
			s.Logger.WithError(err).WithField("user_id", u.ID).Warn("es index failed")
		}
		return
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() && s.Logger != nil {
		s.Logger.WithField("status", res.Status()).WithField("user_id", u.ID).Warn("es index response error")
	}
}

func (s *UserStore) deleteUserDoc(ctx context.Context, id string) {
	if s.ES == nil || s.ESUsersIndex == "" {
		return
	}
	req := esapi.DeleteRequest{Index: s.ESUsersIndex, DocumentID: id}
	c, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := req.Do(c, s.ES)
	if err != nil {
		if s.Logger != nil {
			s.Logger.WithError(err).WithField("user_id", id).Warn("es delete failed")
		}
		return
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() && res.StatusCode != 404 && s.Logger != nil {
		s.Logger.WithField("status", res.Status()).WithField("user_id", id).Warn("es delete response error")
	}
}

// SearchUsers performs a simple multi_match search on username and email.
// Without a configured index it returns an empty result.
func (s *UserStore) SearchUsers(ctx context.Context, q string, size int) ([]map[string]any, error) {
	if s.closed {
		return nil, ErrStoreClosed
	}
	if s.ES == nil || s.ESUsersIndex == "" {
		return []map[string]any{}, nil
	}
	if size <= 0 || size > 50 {
		size = 10
	}
	query := map[string]any{
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":  q,
				"fields": []string{"username^2", "email"},
			},
		},
		"size": size,
	}
	b, _ := json.Marshal(query)

	c, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	res, err := s.ES.Search(s.ES.Search.WithContext(c), s.ES.Search.WithIndex(s.ESUsersIndex), s.ES.Search.WithBody(strings.NewReader(string(b))))
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	var parsed struct {
		Hits struct {
			Hits []struct {
				ID     string         `json:"_id"`
				Source map[string]any `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, err
	}

	out := make([]map[string]any, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		out = append(out, h.Source)
	}
	return out, nil
}
