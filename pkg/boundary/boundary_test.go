package boundary

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leaprest/internal/testutil"
	"github.com/leapstack-labs/leaprest/pkg/catalog"
	"github.com/leapstack-labs/leaprest/pkg/compiler"
	"github.com/leapstack-labs/leaprest/pkg/core"
	_ "github.com/leapstack-labs/leaprest/pkg/dialects/postgres"
	_ "github.com/leapstack-labs/leaprest/pkg/dialects/sqlite"
	"github.com/leapstack-labs/leaprest/pkg/license"
)

var target = Target{Schema: "public", Root: "/rest/", Role: "admin"}

func newCompiler(t *testing.T, dialectName string, errs *ErrorChannel) *Compiler {
	t.Helper()
	c := New(context.Background(), dialectName, testutil.SchemaJSON, "", errs,
		catalog.WithLogger(testutil.NewTestLogger(t)))
	require.NotNil(t, c, errs.Message())
	return c
}

func drain(errs *ErrorChannel) string {
	buf := make([]byte, errs.Length())
	n := errs.CopyMessage(buf)
	return string(buf[:n])
}

func TestMainStatement(t *testing.T) {
	errs := &ErrorChannel{}
	c := newCompiler(t, "sqlite", errs)
	assert.True(t, c.IsDemo())

	s := c.MainStatement(target, Request{
		Method:  "GET",
		URI:     "http://localhost/rest/projects?select=id,name&id=eq.1",
		Headers: []core.Pair{{Key: "Accept", Value: "application/json"}},
		Env:     []core.Pair{{Key: "role", Value: "admin"}, {Key: "path", Value: "/home/user"}},
	})
	require.NotNil(t, s)
	assert.Equal(t, 3, s.ParamsCount())
	assert.Equal(t, "1", s.Params[2].Value)
	assert.Equal(t, "INTEGER", s.Params[2].Type)
	assert.Zero(t, errs.Length())
}

func TestErrorChannel(t *testing.T) {
	errs := &ErrorChannel{}
	c := newCompiler(t, "sqlite", errs)

	assert.Nil(t, c.MainStatement(target, Request{Method: "GET", URI: "/rest/nope"}))
	require.Positive(t, errs.Length())
	assert.Contains(t, drain(errs), "Not Found")

	assert.Equal(t, -1, errs.CopyMessage(make([]byte, 1)), "short buffers are rejected")

	assert.Nil(t, c.MainStatement(target, Request{Method: "TRACE", URI: "/rest/projects"}))
	assert.Contains(t, drain(errs), "Unsupported HTTP verb", "a new failure overwrites the message")
}

func TestErrorChannel_PerCaller(t *testing.T) {
	shared := newCompiler(t, "sqlite", &ErrorChannel{})

	var wg sync.WaitGroup
	chans := make([]*ErrorChannel, 8)
	for i := range chans {
		chans[i] = &ErrorChannel{}
		c := &Compiler{cat: shared.Catalog(), errs: chans[i]}
		uri := "/rest/projects?select=id"
		if i%2 == 1 {
			uri = "/rest/projects?select=nope"
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.MainStatement(target, Request{Method: "GET", URI: uri})
		}()
	}
	wg.Wait()

	for i, ch := range chans {
		if i%2 == 1 {
			assert.Contains(t, ch.Message(), "nope")
		} else {
			assert.Zero(t, ch.Length())
		}
	}
}

func TestNew_Failures(t *testing.T) {
	errs := &ErrorChannel{}

	assert.Nil(t, New(context.Background(), "oracle", testutil.SchemaJSON, "", errs))
	assert.Contains(t, drain(errs), "oracle")

	assert.Nil(t, New(context.Background(), "sqlite", `{"schemas":[`, "", errs))
	assert.NotEmpty(t, drain(errs))

	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	assert.Nil(t, New(context.Background(), "sqlite", testutil.SchemaJSON, "garbage", errs,
		catalog.WithPublicKey(base64.StdEncoding.EncodeToString(pub))))
	assert.Contains(t, drain(errs), "license")
}

func TestNew_Licensed(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	key, err := license.Sign(priv, license.Claims{Email: "me@my.com", Plan: "personal", Exp: time.Now().Add(time.Hour).UnixMilli()})
	require.NoError(t, err)

	errs := &ErrorChannel{}
	c := New(context.Background(), "sqlite", testutil.SchemaJSON, key, errs,
		catalog.WithPublicKey(base64.StdEncoding.EncodeToString(pub)))
	require.NotNil(t, c, errs.Message())
	assert.False(t, c.IsDemo())
}

func TestEnvStatement(t *testing.T) {
	errs := &ErrorChannel{}
	c := newCompiler(t, "postgresql", errs)

	s := c.EnvStatement(Request{Env: []core.Pair{{Key: "role", Value: "admin"}, {Key: "path", Value: "/home/user"}}})
	require.NotNil(t, s)
	assert.Equal(t, "select set_config($1, $2, true),set_config($3, $4, true)", s.SQL)
	assert.Equal(t, 4, s.ParamsCount())

	s = c.EnvStatement(Request{})
	require.NotNil(t, s)
	assert.Equal(t, "select null", s.SQL)
}

func TestTwoStageStatement(t *testing.T) {
	errs := &ErrorChannel{}
	c := newCompiler(t, "sqlite", errs)
	body := `[{"name":"project1"}]`

	ts := c.TwoStageStatement(target, Request{
		Method:  "POST",
		URI:     "http://localhost/rest/projects?select=id,name",
		Body:    &body,
		Headers: []core.Pair{{Key: "Content-Type", Value: "application/json"}},
	})
	require.NotNil(t, ts, errs.Message())
	assert.Equal(t, 1, ts.Mutate().ParamsCount())

	assert.Nil(t, ts.Select())
	assert.Contains(t, drain(errs), compiler.ErrIDsNotSet.Error())

	ts.SetIDs([]string{"1", "2", "3"})
	s := ts.Select()
	require.NotNil(t, s)
	assert.Equal(t, []string{`["1","2","3"]`}, s.ParamValues())
	assert.Equal(t, compiler.StateSelectReady, ts.State())

	assert.Nil(t, c.TwoStageStatement(target, Request{Method: "GET", URI: "/rest/projects"}))
	assert.NotEmpty(t, drain(errs))
}
