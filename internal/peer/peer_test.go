// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package peer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"time"

	"github.com/juju/clock"
	"github.com/juju/clock/testclock"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	"go.uber.org/mock/gomock"
	gc "gopkg.in/check.v1"

	"github.com/clustervision/luna2-daemon-sub002/domain/ha"
	haerrors "github.com/clustervision/luna2-daemon-sub002/domain/ha/errors"
	"github.com/clustervision/luna2-daemon-sub002/domain/journal"
	"github.com/clustervision/luna2-daemon-sub002/domain/records"
	recordserrors "github.com/clustervision/luna2-daemon-sub002/domain/records/errors"
)

type peerSuite struct {
	testing.IsolationSuite

	clock *testclock.Clock

	ha      *MockHAService
	records *MockRecordsService
	journal *MockJournalService

	server *httptest.Server
	target ha.Controller
}

var _ = gc.Suite(&peerSuite{})

func (s *peerSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	s.clock = testclock.NewClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	s.target = ha.Controller{Hostname: "ctl2", IPv4: "10.141.255.252", ServerPort: 7051}
}

func (s *peerSuite) TearDownTest(c *gc.C) {
	if s.server != nil {
		s.server.Close()
		s.server = nil
	}
	s.IsolationSuite.TearDownTest(c)
}

func (s *peerSuite) setupMocks(c *gc.C) *gomock.Controller {
	ctrl := gomock.NewController(c)
	s.ha = NewMockHAService(ctrl)
	s.records = NewMockRecordsService(ctrl)
	s.journal = NewMockJournalService(ctrl)

	verifier, err := NewTokenVerifier("ctl2", secret, s.clock)
	c.Assert(err, jc.ErrorIsNil)
	handler, err := NewHandler(ServerConfig{
		Hostname: "ctl2",
		Verifier: verifier,
		HA:       s.ha,
		Records:  s.records,
		Journal:  s.journal,
		Logger:   loggo.GetLogger("test"),
	})
	c.Assert(err, jc.ErrorIsNil)
	s.server = httptest.NewServer(handler)
	return ctrl
}

func (s *peerSuite) newClient(c *gc.C, url string) *Client {
	provider, err := NewTokenProvider("ctl1", secret, s.clock)
	c.Assert(err, jc.ErrorIsNil)
	client, err := NewClient(ClientConfig{
		Hostname:   "ctl1",
		Tokens:     provider,
		Clock:      clock.WallClock,
		Logger:     loggo.GetLogger("test"),
		RetryDelay: time.Millisecond,
		BaseURL:    func(ha.Controller) string { return url },
	})
	c.Assert(err, jc.ErrorIsNil)
	return client
}

func (s *peerSuite) TestPing(c *gc.C) {
	defer s.setupMocks(c).Finish()

	s.ha.EXPECT().RecordPing(gomock.Any(), "ctl1").Return(nil)
	s.ha.EXPECT().Status(gomock.Any()).Return(ha.State{Enabled: true, Master: true, InSync: true}, nil)

	resp, err := s.newClient(c, s.server.URL).Ping(context.Background(), s.target)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(resp, gc.DeepEquals, PingResponse{Hostname: "ctl2", Master: true, InSync: true})
}

func (s *peerSuite) TestMissingToken(c *gc.C) {
	defer s.setupMocks(c).Finish()

	resp, err := http.Get(s.server.URL + "/ping")
	c.Assert(err, jc.ErrorIsNil)
	_ = resp.Body.Close()
	c.Check(resp.StatusCode, gc.Equals, http.StatusUnauthorized)
}

func (s *peerSuite) TestChecksums(c *gc.C) {
	defer s.setupMocks(c).Finish()

	sums := map[string]string{"node": "abc", "group": "def"}
	s.records.EXPECT().Checksums(gomock.Any()).Return(sums, nil)

	got, err := s.newClient(c, s.server.URL).Checksums(context.Background(), s.target)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(got, jc.DeepEquals, sums)
}

func (s *peerSuite) TestTable(c *gc.C) {
	defer s.setupMocks(c).Finish()

	table := records.Table{
		Name:    "node",
		Columns: []string{"name", "groupid"},
		Rows: [][]any{
			{"node001", int64(1)},
			{"node002", int64(2)},
		},
	}
	s.records.EXPECT().Export(gomock.Any(), "node").Return(table, nil)

	got, err := s.newClient(c, s.server.URL).Table(context.Background(), s.target, "node")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(got, jc.DeepEquals, table)
}

func (s *peerSuite) TestTableNotTracked(c *gc.C) {
	defer s.setupMocks(c).Finish()

	// Not found is retried once.
	s.records.EXPECT().Export(gomock.Any(), "secrets").Return(records.Table{}, recordserrors.TableNotTracked).Times(2)

	_, err := s.newClient(c, s.server.URL).Table(context.Background(), s.target, "secrets")
	c.Check(err, gc.ErrorMatches, `.*peer returned 404: table not tracked`)
}

func (s *peerSuite) TestPushJournal(c *gc.C) {
	defer s.setupMocks(c).Finish()

	entries := []journal.Entry{{
		UUID:       "d1b0e9e4-0c5e-4a42-8d3a-5b8c1d7d3f10",
		Origin:     "ctl1",
		Operation:  "record.upsert",
		Object:     "node/node001",
		Payload:    `{"table":"node"}`,
		OriginTime: time.Date(2025, 3, 1, 11, 0, 0, 0, time.UTC),
	}}
	s.journal.EXPECT().Receive(gomock.Any(), entries).Return(1, nil)

	err := s.newClient(c, s.server.URL).PushJournal(context.Background(), s.target, entries)
	c.Assert(err, jc.ErrorIsNil)
}

func (s *peerSuite) TestPullAndAcknowledge(c *gc.C) {
	defer s.setupMocks(c).Finish()

	entries := []journal.Entry{{
		UUID:       "7e0c4c63-8d1a-4b44-9a3e-0b7c4a0a9f21",
		Origin:     "ctl2",
		Operation:  "record.delete",
		Object:     "node/node003",
		Payload:    `{"table":"node"}`,
		OriginTime: time.Date(2025, 3, 1, 11, 30, 0, 0, time.UTC),
	}}
	s.journal.EXPECT().Pending(gomock.Any(), "ctl1").Return(entries, nil)
	s.journal.EXPECT().Acknowledge(gomock.Any(), "ctl1", []string{entries[0].UUID}).Return(nil)

	client := s.newClient(c, s.server.URL)
	got, err := client.PullJournal(context.Background(), s.target)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(got, jc.DeepEquals, entries)

	err = client.AckJournal(context.Background(), s.target, []string{got[0].UUID})
	c.Assert(err, jc.ErrorIsNil)
}

func (s *peerSuite) TestPullForeignJournal(c *gc.C) {
	defer s.setupMocks(c).Finish()

	provider, err := NewTokenProvider("ctl1", secret, s.clock)
	c.Assert(err, jc.ErrorIsNil)
	token, err := provider.Token("ctl2")
	c.Assert(err, jc.ErrorIsNil)

	req, err := http.NewRequest(http.MethodGet, s.server.URL+"/journal/ctl3", nil)
	c.Assert(err, jc.ErrorIsNil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	c.Assert(err, jc.ErrorIsNil)
	_ = resp.Body.Close()
	c.Check(resp.StatusCode, gc.Equals, http.StatusUnauthorized)
}

func (s *peerSuite) TestSetRole(c *gc.C) {
	defer s.setupMocks(c).Finish()

	guard := time.Date(2025, 3, 1, 11, 59, 0, 0, time.UTC)
	s.ha.EXPECT().SetRole(gomock.Any(), false, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ bool, got *time.Time) error {
			c.Check(got, gc.NotNil)
			c.Check(got.Equal(guard), jc.IsTrue)
			return nil
		})

	err := s.newClient(c, s.server.URL).SetRole(context.Background(), s.target, RoleChange{Master: false, Guard: &guard})
	c.Assert(err, jc.ErrorIsNil)
}

func (s *peerSuite) TestSetRoleStaleNotRetried(c *gc.C) {
	defer s.setupMocks(c).Finish()

	s.ha.EXPECT().SetRole(gomock.Any(), false, gomock.Any()).Return(haerrors.StaleRoleChange)

	err := s.newClient(c, s.server.URL).SetRole(context.Background(), s.target, RoleChange{Master: false})
	c.Check(err, gc.ErrorMatches, `.*peer returned 409: stale role change`)
}

func (s *peerSuite) TestRetryOnUnavailable(c *gc.C) {
	var calls int32
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", contentTypeJSON)
		_, _ = w.Write([]byte(`{"checksums":{"node":"abc"}}`))
	}))

	got, err := s.newClient(c, s.server.URL).Checksums(context.Background(), s.target)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(got, jc.DeepEquals, map[string]string{"node": "abc"})
	c.Check(atomic.LoadInt32(&calls), gc.Equals, int32(2))
}

func (s *peerSuite) TestNoRetryOnBadRequest(c *gc.C) {
	var calls int32
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad"}`))
	}))

	_, err := s.newClient(c, s.server.URL).Checksums(context.Background(), s.target)
	c.Check(err, gc.ErrorMatches, `.*peer returned 400: bad`)
	c.Check(atomic.LoadInt32(&calls), gc.Equals, int32(1))
}

func (s *peerSuite) TestGivesUpAfterSecondAttempt(c *gc.C) {
	var calls int32
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := s.newClient(c, s.server.URL).Ping(context.Background(), s.target)
	c.Check(err, gc.ErrorMatches, `.*peer returned 502 Bad Gateway`)
	c.Check(atomic.LoadInt32(&calls), gc.Equals, int32(2))
}

func (s *peerSuite) TestDefaultBaseURL(c *gc.C) {
	provider, err := NewTokenProvider("ctl1", secret, s.clock)
	c.Assert(err, jc.ErrorIsNil)
	client, err := NewClient(ClientConfig{
		Hostname: "ctl1",
		Tokens:   provider,
		Clock:    s.clock,
		Logger:   loggo.GetLogger("test"),
		Secure:   true,
	})
	c.Assert(err, jc.ErrorIsNil)
	c.Check(client.baseURL(s.target), gc.Equals, "https://10.141.255.252:7051")
	c.Check(client.baseURL(ha.Controller{Hostname: "ctl3", ServerPort: 7050}), gc.Equals, "https://ctl3:7050")
}

func (s *peerSuite) TestInvalidConfig(c *gc.C) {
	_, err := NewClient(ClientConfig{})
	c.Check(err, jc.ErrorIs, errors.NotValid)
	_, err = NewHandler(ServerConfig{})
	c.Check(err, jc.ErrorIs, errors.NotValid)
}
