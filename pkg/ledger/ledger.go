// Package ledger reads marketplace state from the chain and constructs the
// transactions that change it. Reads go through JSON-RPC; transaction
// builders are pure and return serializable call descriptions for the
// wallet layer to sign and submit.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// QueryError reports an RPC failure or a malformed object shape.
type QueryError struct {
	Method string
	Err    error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("ledger: %s: %v", e.Method, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

type Config struct {
	// RPCURL is the JSON-RPC endpoint of a full node.
	RPCURL string
	// PackageID is the marketplace package; struct-type filters derive
	// from it.
	PackageID string
	// MarketAddress owns the listing objects and is scanned by
	// FetchListings.
	MarketAddress string
	Logger        *logrus.Logger
	HTTPClient    *http.Client
}

// Gateway is the read/build interface to the ledger. Safe for concurrent
// use; it holds no mutable state beyond the request counter.
type Gateway struct {
	config     Config
	httpClient *http.Client
	log        *logrus.Logger
	requestID  atomic.Int64
}

func New(config Config) (*Gateway, error) {
	if config.RPCURL == "" {
		return nil, errors.New("ledger: RPC URL is required")
	}
	if config.PackageID == "" {
		return nil, errors.New("ledger: package ID is required")
	}
	if config.Logger == nil {
		config.Logger = logrus.New()
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Gateway{
		config:     config,
		httpClient: httpClient,
		log:        config.Logger,
	}, nil
}

func (g *Gateway) listingType() string {
	return g.config.PackageID + "::market::Listing"
}

func (g *Gateway) passType() string {
	return g.config.PackageID + "::market::EntitlementPass"
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int64         `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// objectData is the common object envelope of getObject and
// getOwnedObjects results.
type objectData struct {
	Data *struct {
		ObjectID string `json:"objectId"`
		Content  *struct {
			Fields map[string]interface{} `json:"fields"`
		} `json:"content"`
	} `json:"data"`
}

type ownedObjectsResult struct {
	Data []objectData `json:"data"`
}

func (g *Gateway) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	reqBody, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      g.requestID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.config.RPCURL, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	var parsed rpcResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return err
	}
	if parsed.Error != nil {
		return fmt.Errorf("rpc error %d: %s", parsed.Error.Code, parsed.Error.Message)
	}
	return json.Unmarshal(parsed.Result, result)
}

// FetchListing returns one listing by object ID. Unlike list queries,
// failures here surface to the caller.
func (g *Gateway) FetchListing(ctx context.Context, id string) (Listing, error) {
	if id == "" {
		return Listing{}, &ValidationError{Field: "listingId", Reason: "empty"}
	}
	var obj objectData
	err := g.call(ctx, "sui_getObject", []interface{}{
		id,
		map[string]interface{}{"showContent": true},
	}, &obj)
	if err != nil {
		return Listing{}, &QueryError{Method: "sui_getObject", Err: err}
	}
	if obj.Data == nil || obj.Data.Content == nil {
		return Listing{}, &QueryError{Method: "sui_getObject", Err: fmt.Errorf("object %s has no content", id)}
	}
	return decodeListing(obj.Data.ObjectID, obj.Data.Content.Fields), nil
}

// FetchListings returns every listing held by the market address. RPC
// failures degrade to an empty slice: a marketplace page with no listings
// beats an error page.
func (g *Gateway) FetchListings(ctx context.Context) []Listing {
	objects, err := g.ownedObjects(ctx, g.config.MarketAddress, g.listingType())
	if err != nil {
		g.log.Warnf("listing query failed, returning empty result: %v", err)
		return nil
	}
	var listings []Listing
	for _, obj := range objects {
		if obj.Data == nil || obj.Data.Content == nil {
			continue
		}
		listings = append(listings, decodeListing(obj.Data.ObjectID, obj.Data.Content.Fields))
	}
	return listings
}

// FetchUserEntitlementPasses returns the passes owned by address. Degrades
// to empty on RPC failure, like FetchListings.
func (g *Gateway) FetchUserEntitlementPasses(ctx context.Context, address string) []EntitlementPass {
	objects, err := g.ownedObjects(ctx, address, g.passType())
	if err != nil {
		g.log.Warnf("entitlement pass query failed, returning empty result: %v", err)
		return nil
	}
	var passes []EntitlementPass
	for _, obj := range objects {
		if obj.Data == nil || obj.Data.Content == nil {
			continue
		}
		passes = append(passes, decodeEntitlementPass(obj.Data.ObjectID, obj.Data.Content.Fields))
	}
	return passes
}

func (g *Gateway) ownedObjects(ctx context.Context, owner, structType string) ([]objectData, error) {
	if owner == "" {
		return nil, errors.New("empty owner address")
	}
	var result ownedObjectsResult
	err := g.call(ctx, "suix_getOwnedObjects", []interface{}{
		owner,
		map[string]interface{}{
			"filter":  map[string]interface{}{"StructType": structType},
			"options": map[string]interface{}{"showContent": true},
		},
	}, &result)
	if err != nil {
		return nil, err
	}
	return result.Data, nil
}
