package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/R3E-Network/provider-daemon/internal/chainiface"
	"github.com/R3E-Network/provider-daemon/internal/resource"
)

// Postgres is the production Store, built on sqlx over lib/pq — the same
// driver the teacher's internal/app/runtime/application.go opens via
// database/sql, formalized here with sqlx's struct-scan query layer. The
// address columns are stored lowercased and compared lowercased, which is
// the "equivalent collation" spec §4.1 permits in place of a CI text type.
type Postgres struct {
	db *sqlx.DB
}

// Open connects to DATABASE_URL and verifies the connection, following the
// teacher's openDatabase: set pool limits, then PingContext with a timeout.
func Open(dsn string) (*Postgres, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Postgres{db: db}, nil
}

func OpenWithDB(db *sql.DB) *Postgres {
	return &Postgres{db: sqlx.NewDb(db, "postgres")}
}

func (p *Postgres) Close() error { return p.db.Close() }

func lower(a chainiface.Address) string { return strings.ToLower(a.String()) }

func (p *Postgres) GetOrCreateProtocol(ctx context.Context, address chainiface.Address, detailsCID string) (*ProtocolRow, error) {
	addr := lower(address)

	var row protocolRecord
	err := p.db.GetContext(ctx, &row, `SELECT id, address, details_cid FROM protocols WHERE address = $1`, addr)
	if err == nil {
		return row.toProtocolRow(), nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("query protocol: %w", err)
	}

	err = p.db.GetContext(ctx, &row, `
		INSERT INTO protocols (address, details_cid) VALUES ($1, $2)
		ON CONFLICT (address) DO UPDATE SET address = EXCLUDED.address
		RETURNING id, address, details_cid`, addr, detailsCID)
	if err != nil {
		return nil, fmt.Errorf("insert protocol: %w", err)
	}
	return row.toProtocolRow(), nil
}

func (p *Postgres) GetProtocolByAddress(ctx context.Context, address chainiface.Address) (*ProtocolRow, error) {
	var row protocolRecord
	err := p.db.GetContext(ctx, &row, `SELECT id, address, details_cid FROM protocols WHERE address = $1`, lower(address))
	if err != nil {
		return nil, fmt.Errorf("query protocol: %w", err)
	}
	return row.toProtocolRow(), nil
}

func (p *Postgres) GetProtocolByID(ctx context.Context, id int64) (*ProtocolRow, error) {
	var row protocolRecord
	err := p.db.GetContext(ctx, &row, `SELECT id, address, details_cid FROM protocols WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("query protocol: %w", err)
	}
	return row.toProtocolRow(), nil
}

func (p *Postgres) UpsertProvider(ctx context.Context, pr ProviderRow) (*ProviderRow, error) {
	var row providerRecord
	err := p.db.GetContext(ctx, &row, `
		INSERT INTO providers (owner_address, operator_address, endpoint, is_virtual, gateway_provider_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (owner_address) DO UPDATE SET
			operator_address = EXCLUDED.operator_address,
			endpoint = EXCLUDED.endpoint,
			is_virtual = EXCLUDED.is_virtual,
			gateway_provider_id = EXCLUDED.gateway_provider_id
		RETURNING id, owner_address, operator_address, endpoint, is_virtual, gateway_provider_id`,
		lower(pr.OwnerAddress), lower(pr.OperatorAddress), pr.Endpoint, pr.IsVirtual, pr.GatewayProviderID)
	if err != nil {
		return nil, fmt.Errorf("upsert provider: %w", err)
	}
	return row.toProviderRow(), nil
}

func (p *Postgres) GetProviderByOwner(ctx context.Context, owner chainiface.Address) (*ProviderRow, error) {
	var row providerRecord
	err := p.db.GetContext(ctx, &row, `
		SELECT id, owner_address, operator_address, endpoint, is_virtual, gateway_provider_id
		FROM providers WHERE owner_address = $1`, lower(owner))
	if err != nil {
		return nil, fmt.Errorf("query provider: %w", err)
	}
	return row.toProviderRow(), nil
}

func (p *Postgres) ListVirtualChildren(ctx context.Context, gatewayProviderID int64) ([]*ProviderRow, error) {
	var rows []providerRecord
	err := p.db.SelectContext(ctx, &rows, `
		SELECT id, owner_address, operator_address, endpoint, is_virtual, gateway_provider_id
		FROM providers WHERE is_virtual = true AND gateway_provider_id = $1`, gatewayProviderID)
	if err != nil {
		return nil, fmt.Errorf("query virtual children: %w", err)
	}
	out := make([]*ProviderRow, len(rows))
	for i, r := range rows {
		out[i] = r.toProviderRow()
	}
	return out, nil
}

func (p *Postgres) GetResource(ctx context.Context, id int64, owner chainiface.Address, protocolAddr chainiface.Address) (*resource.Resource, error) {
	protocol, err := p.GetProtocolByAddress(ctx, protocolAddr)
	if err != nil {
		return nil, err
	}

	var row resourceRecord
	err = p.db.GetContext(ctx, &row, `
		SELECT id, pt_address_id, name, owner_address, offer_id, provider_id,
		       deployment_status, details, group_name, is_active, created_at
		FROM resources WHERE id = $1 AND pt_address_id = $2 AND owner_address = $3`,
		id, protocol.ID, lower(owner))
	if err != nil {
		return nil, fmt.Errorf("query resource: %w", err)
	}
	return row.toResource()
}

func (p *Postgres) GetResourceByKey(ctx context.Context, key resource.Key) (*resource.Resource, error) {
	var row resourceRecord
	err := p.db.GetContext(ctx, &row, `
		SELECT id, pt_address_id, name, owner_address, offer_id, provider_id,
		       deployment_status, details, group_name, is_active, created_at
		FROM resources WHERE id = $1 AND pt_address_id = $2`, key.ID, key.ProtocolID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query resource: %w", err)
	}
	return row.toResource()
}

func (p *Postgres) ListResourcesByOwner(ctx context.Context, owner chainiface.Address) ([]*resource.Resource, error) {
	var rows []resourceRecord
	err := p.db.SelectContext(ctx, &rows, `
		SELECT id, pt_address_id, name, owner_address, offer_id, provider_id,
		       deployment_status, details, group_name, is_active, created_at
		FROM resources WHERE owner_address = $1`, lower(owner))
	if err != nil {
		return nil, fmt.Errorf("query resources: %w", err)
	}
	out := make([]*resource.Resource, 0, len(rows))
	for _, r := range rows {
		res, err := r.toResource()
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

func (p *Postgres) CreateResource(ctx context.Context, r *resource.Resource) error {
	detailsJSON, err := json.Marshal(r.Details)
	if err != nil {
		return fmt.Errorf("marshal details: %w", err)
	}

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO resources (id, pt_address_id, name, owner_address, offer_id, provider_id,
		                        deployment_status, details, group_name, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		r.ID, r.ProtocolID, r.Name, lower(r.OwnerAddress), r.OfferID, r.ProviderID,
		string(r.DeploymentStatus), detailsJSON, r.GroupName, r.IsActive, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert resource: %w", err)
	}
	return tx.Commit()
}

func (p *Postgres) UpdateResource(ctx context.Context, key resource.Key, protocolAddr chainiface.Address, mutate func(*resource.Resource)) error {
	protocol, err := p.GetProtocolByAddress(ctx, protocolAddr)
	if err != nil {
		return ErrUnknownProtocol
	}
	if protocol.ID != key.ProtocolID {
		return ErrUnknownProtocol
	}

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var row resourceRecord
	err = tx.GetContext(ctx, &row, `
		SELECT id, pt_address_id, name, owner_address, offer_id, provider_id,
		       deployment_status, details, group_name, is_active, created_at
		FROM resources WHERE id = $1 AND pt_address_id = $2 FOR UPDATE`, key.ID, key.ProtocolID)
	if err != nil {
		return fmt.Errorf("query resource for update: %w", err)
	}
	res, err := row.toResource()
	if err != nil {
		return err
	}

	mutate(res)

	detailsJSON, err := json.Marshal(res.Details)
	if err != nil {
		return fmt.Errorf("marshal details: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE resources SET name=$1, deployment_status=$2, details=$3, is_active=$4
		WHERE id=$5 AND pt_address_id=$6`,
		res.Name, string(res.DeploymentStatus), detailsJSON, res.IsActive, key.ID, key.ProtocolID)
	if err != nil {
		return fmt.Errorf("update resource: %w", err)
	}
	return tx.Commit()
}

func (p *Postgres) DeleteResource(ctx context.Context, key resource.Key) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE resources SET is_active = false, deployment_status = $1, details = $2
		WHERE id = $3 AND pt_address_id = $4`,
		string(resource.Closed), `{}`, key.ID, key.ProtocolID)
	if err != nil {
		return fmt.Errorf("delete resource: %w", err)
	}
	return nil
}

func (p *Postgres) SyncDetailFiles(contents map[string][]byte) error {
	ctx := context.Background()
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	cids := make([]string, 0, len(contents))
	for cid := range contents {
		cids = append(cids, cid)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM detail_files WHERE cid != ALL($1)`, pq.Array(cids)); err != nil {
		return fmt.Errorf("prune detail files: %w", err)
	}

	for cid, content := range contents {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO detail_files (cid, content) VALUES ($1, $2)
			ON CONFLICT (cid) DO NOTHING`, cid, string(content)); err != nil {
			return fmt.Errorf("upsert detail file %s: %w", cid, err)
		}
	}
	return tx.Commit()
}

func (p *Postgres) GetDetailContent(ctx context.Context, cid string) ([]byte, bool, error) {
	var content string
	err := p.db.GetContext(ctx, &content, `SELECT content FROM detail_files WHERE cid = $1`, cid)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query detail content: %w", err)
	}
	return []byte(content), true, nil
}

func (p *Postgres) PutDetailContent(ctx context.Context, cid string, content []byte) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO detail_files (cid, content) VALUES ($1, $2)
		ON CONFLICT (cid) DO NOTHING`, cid, string(content))
	return err
}

func (p *Postgres) GetConfig(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := p.db.GetContext(ctx, &value, `SELECT value FROM config WHERE key = $1`, key)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query config: %w", err)
	}
	return value, true, nil
}

func (p *Postgres) SetConfig(ctx context.Context, key, value string) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, key, value)
	return err
}

func (p *Postgres) GetVProvOfferConfig(ctx context.Context, offerID, protocolID int64) (*VProvOfferConfig, error) {
	var raw string
	err := p.db.GetContext(ctx, &raw, `
		SELECT configuration FROM virtual_provider_offer_configurations
		WHERE offer_id = $1 AND pt_address_id = $2`, offerID, protocolID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query vprov offer config: %w", err)
	}
	var cfg map[string]any
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, fmt.Errorf("decode vprov offer config: %w", err)
	}
	return &VProvOfferConfig{OfferID: offerID, ProtocolID: protocolID, Configuration: cfg}, nil
}

func (p *Postgres) SetVProvOfferConfig(ctx context.Context, cfg VProvOfferConfig) error {
	raw, err := json.Marshal(cfg.Configuration)
	if err != nil {
		return fmt.Errorf("marshal vprov offer config: %w", err)
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO virtual_provider_offer_configurations (offer_id, pt_address_id, configuration)
		VALUES ($1, $2, $3)
		ON CONFLICT (offer_id, pt_address_id) DO UPDATE SET configuration = EXCLUDED.configuration`,
		cfg.OfferID, cfg.ProtocolID, raw)
	return err
}

// --- row scan shapes ---

type protocolRecord struct {
	ID         int64  `db:"id"`
	Address    string `db:"address"`
	DetailsCID string `db:"details_cid"`
}

func (r protocolRecord) toProtocolRow() *ProtocolRow {
	addr, _ := chainiface.ParseAddress(r.Address)
	return &ProtocolRow{ID: r.ID, Address: addr, DetailsCID: r.DetailsCID}
}

type providerRecord struct {
	ID                int64         `db:"id"`
	OwnerAddress      string        `db:"owner_address"`
	OperatorAddress   string        `db:"operator_address"`
	Endpoint          string        `db:"endpoint"`
	IsVirtual         bool          `db:"is_virtual"`
	GatewayProviderID sql.NullInt64 `db:"gateway_provider_id"`
}

func (r providerRecord) toProviderRow() *ProviderRow {
	owner, _ := chainiface.ParseAddress(r.OwnerAddress)
	operator, _ := chainiface.ParseAddress(r.OperatorAddress)
	row := &ProviderRow{ID: r.ID, OwnerAddress: owner, OperatorAddress: operator, Endpoint: r.Endpoint, IsVirtual: r.IsVirtual}
	if r.GatewayProviderID.Valid {
		id := r.GatewayProviderID.Int64
		row.GatewayProviderID = &id
	}
	return row
}

type resourceRecord struct {
	ID               int64     `db:"id"`
	ProtocolID       int64     `db:"pt_address_id"`
	Name             string    `db:"name"`
	OwnerAddress     string    `db:"owner_address"`
	OfferID          int64     `db:"offer_id"`
	ProviderID       int64     `db:"provider_id"`
	DeploymentStatus string    `db:"deployment_status"`
	Details          string    `db:"details"`
	GroupName        string    `db:"group_name"`
	IsActive         bool      `db:"is_active"`
	CreatedAt        time.Time `db:"created_at"`
}

func (r resourceRecord) toResource() (*resource.Resource, error) {
	owner, err := chainiface.ParseAddress(r.OwnerAddress)
	if err != nil {
		return nil, fmt.Errorf("parse owner address: %w", err)
	}

	var details map[string]any
	if r.Details != "" {
		if err := json.Unmarshal([]byte(r.Details), &details); err != nil {
			return nil, fmt.Errorf("decode details: %w", err)
		}
	}
	if details == nil {
		details = map[string]any{}
	}

	return &resource.Resource{
		Key:              resource.Key{ID: r.ID, ProtocolID: r.ProtocolID},
		Name:             r.Name,
		OwnerAddress:     owner,
		OfferID:          r.OfferID,
		ProviderID:       r.ProviderID,
		DeploymentStatus: resource.DeploymentStatus(r.DeploymentStatus),
		Details:          details,
		GroupName:        r.GroupName,
		IsActive:         r.IsActive,
		CreatedAt:        r.CreatedAt,
	}, nil
}

