package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/nimasrn/sms-credits/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

var testMpesaConfig = MpesaConfig{
	ConsumerKey:    "key",
	ConsumerSecret: "secret",
	ShortCode:      "174379",
	PassKey:        "passkey",
	CallbackURL:    "https://example.com/api/v1/payments/callback",
}

func newTokenCache(t *testing.T) (*miniredis.Miniredis, redis.RedisAdapter) {
	t.Helper()
	mr := miniredis.RunT(t)
	adapter, err := redis.NewRedisAdapter("gateway-"+uuid.NewString(), "", &goredis.UniversalOptions{Addrs: []string{mr.Addr()}})
	require.NoError(t, err)
	return mr, adapter
}

type fakeDaraja struct {
	oauthCalls atomic.Int32
	pushStatus int
	pushBody   string
	queryCode  int
	queryBody  string
	lastPush   map[string]any
	lastAuth   string
}

func (f *fakeDaraja) handler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		ctx.SetContentType("application/json")
		switch string(ctx.Path()) {
		case "/oauth/v1/generate":
			f.oauthCalls.Add(1)
			want := "Basic " + base64.StdEncoding.EncodeToString([]byte("key:secret"))
			if string(ctx.Request.Header.Peek("Authorization")) != want {
				ctx.SetStatusCode(fasthttp.StatusUnauthorized)
				return
			}
			ctx.SetBodyString(`{"access_token":"tok-123","expires_in":"3599"}`)
		case "/mpesa/stkpush/v1/processrequest":
			f.lastAuth = string(ctx.Request.Header.Peek("Authorization"))
			f.lastPush = map[string]any{}
			_ = json.Unmarshal(ctx.PostBody(), &f.lastPush)
			ctx.SetStatusCode(f.pushStatus)
			ctx.SetBodyString(f.pushBody)
		case "/mpesa/stkpushquery/v1/query":
			ctx.SetStatusCode(f.queryCode)
			ctx.SetBodyString(f.queryBody)
		default:
			ctx.SetStatusCode(fasthttp.StatusNotFound)
		}
	}
}

func TestMpesaClient_Initiate(t *testing.T) {
	fake := &fakeDaraja{
		pushStatus: 200,
		pushBody:   `{"MerchantRequestID":"29115-34620561-1","CheckoutRequestID":"ws_CO_191220191020363925","ResponseCode":"0","ResponseDescription":"Success. Request accepted for processing","CustomerMessage":"Success. Request accepted for processing"}`,
	}
	pool := newTestPool(t, fake.handler())
	mr, tokens := newTokenCache(t)
	client := NewMpesaClient(pool, testMpesaConfig, tokens)
	client.now = func() time.Time { return time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC) }

	resp, err := client.Initiate(context.Background(), StkPushRequest{
		Phone:            "254712345678",
		Amount:           500,
		AccountReference: "Plan_3_1",
		Description:      "Standard plan",
	})
	require.NoError(t, err)
	assert.Equal(t, "ws_CO_191220191020363925", resp.CheckoutRequestID)

	assert.Equal(t, "Bearer tok-123", fake.lastAuth)
	assert.Equal(t, "20240301123000", fake.lastPush["Timestamp"])
	password, err := base64.StdEncoding.DecodeString(fake.lastPush["Password"].(string))
	require.NoError(t, err)
	assert.Equal(t, "174379passkey20240301123000", string(password))
	assert.Equal(t, "254712345678", fake.lastPush["PhoneNumber"])
	assert.Equal(t, float64(500), fake.lastPush["Amount"])
	assert.Equal(t, "Plan_3_1", fake.lastPush["AccountReference"])
	assert.Equal(t, "CustomerPayBillOnline", fake.lastPush["TransactionType"])

	t.Run("token is cached", func(t *testing.T) {
		_, err := client.Initiate(context.Background(), StkPushRequest{Phone: "254712345678", Amount: 5})
		require.NoError(t, err)
		assert.Equal(t, int32(1), fake.oauthCalls.Load())
		assert.True(t, mr.Exists(tokenCacheKey))
		assert.Equal(t, 3539*time.Second, mr.TTL(tokenCacheKey))
	})
}

func TestMpesaClient_InitiateRejected(t *testing.T) {
	t.Run("non zero response code", func(t *testing.T) {
		fake := &fakeDaraja{pushStatus: 200, pushBody: `{"ResponseCode":"1","ResponseDescription":"Rejected"}`}
		_, tokens := newTokenCache(t)
		client := NewMpesaClient(newTestPool(t, fake.handler()), testMpesaConfig, tokens)

		_, err := client.Initiate(context.Background(), StkPushRequest{Phone: "254712345678", Amount: 5})
		assert.ErrorIs(t, err, ErrUpstream)
	})

	t.Run("invalid phone answered with 400", func(t *testing.T) {
		fake := &fakeDaraja{pushStatus: 400, pushBody: `{"errorCode":"400.002.02","errorMessage":"Bad Request - Invalid PhoneNumber"}`}
		_, tokens := newTokenCache(t)
		client := NewMpesaClient(newTestPool(t, fake.handler()), testMpesaConfig, tokens)

		_, err := client.Initiate(context.Background(), StkPushRequest{Phone: "254712345678", Amount: 5})
		assert.ErrorIs(t, err, ErrUpstream)
		assert.Contains(t, err.Error(), "Invalid PhoneNumber")
	})

	t.Run("unauthorized drops the cached token", func(t *testing.T) {
		fake := &fakeDaraja{pushStatus: 401, pushBody: `{"errorCode":"404.001.03","errorMessage":"Invalid Access Token"}`}
		mr, tokens := newTokenCache(t)
		client := NewMpesaClient(newTestPool(t, fake.handler()), testMpesaConfig, tokens)

		_, err := client.Initiate(context.Background(), StkPushRequest{Phone: "254712345678", Amount: 5})
		assert.ErrorIs(t, err, ErrUpstream)
		assert.False(t, mr.Exists(tokenCacheKey))
	})
}

func TestMpesaClient_Query(t *testing.T) {
	t.Run("declined", func(t *testing.T) {
		fake := &fakeDaraja{queryCode: 200, queryBody: `{"ResponseCode":"0","ResultCode":"1032","ResultDesc":"Request cancelled by user"}`}
		_, tokens := newTokenCache(t)
		client := NewMpesaClient(newTestPool(t, fake.handler()), testMpesaConfig, tokens)

		res, err := client.Query(context.Background(), "ws_CO_1")
		require.NoError(t, err)
		assert.Equal(t, 1032, res.ResultCode)
		assert.Equal(t, "Request cancelled by user", res.ResultDesc)
	})

	t.Run("paid", func(t *testing.T) {
		fake := &fakeDaraja{queryCode: 200, queryBody: `{"ResponseCode":"0","ResultCode":0,"ResultDesc":"The service request is processed successfully."}`}
		_, tokens := newTokenCache(t)
		client := NewMpesaClient(newTestPool(t, fake.handler()), testMpesaConfig, tokens)

		res, err := client.Query(context.Background(), "ws_CO_1")
		require.NoError(t, err)
		assert.Equal(t, 0, res.ResultCode)
	})

	t.Run("still processing", func(t *testing.T) {
		fake := &fakeDaraja{queryCode: 500, queryBody: `{"requestId":"1","errorCode":"500.001.1001","errorMessage":"The transaction is being processed"}`}
		_, tokens := newTokenCache(t)
		client := NewMpesaClient(newTestPool(t, fake.handler()), testMpesaConfig, tokens)

		_, err := client.Query(context.Background(), "ws_CO_1")
		assert.ErrorIs(t, err, ErrQueryPending)
	})
}
