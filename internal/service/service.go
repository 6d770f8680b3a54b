// Package service exposes the connection manager through the narrow
// resource/action request surface the host application calls. Each action
// takes a typed request and returns a typed response; Dispatch adapts raw
// JSON payloads onto the same methods for hosts that speak wire JSON.
package service

import (
	"context"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/tablelink/tablelink/internal/manager"
	"github.com/tablelink/tablelink/pkg/errors"
	"github.com/tablelink/tablelink/pkg/logger"
	"github.com/tablelink/tablelink/pkg/metrics"
	"github.com/tablelink/tablelink/pkg/observability"
	"github.com/tablelink/tablelink/pkg/schema"
	"github.com/tablelink/tablelink/pkg/store"
)

// Health status values reported by the health action.
const (
	StatusHealthy      = "healthy"
	StatusShuttingDown = "shutting_down"
	StatusDBInactive   = "db_inactive"
)

// Service wires the manager and its collaborators behind the action table.
type Service struct {
	manager     *manager.Manager
	credentials store.CredentialStore
	logger      *zap.Logger
}

// New creates a Service.
func New(mgr *manager.Manager, credentials store.CredentialStore) *Service {
	return &Service{
		manager:     mgr,
		credentials: credentials,
		logger:      logger.With(zap.String("component", "service")),
	}
}

// ConnectRequest carries credentials for a new connection.
type ConnectRequest struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Database string `json:"database"`
	Username string `json:"username"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

// ConnectResponse returns the generated connection id.
type ConnectResponse struct {
	ConnectionID string `json:"connection_id"`
}

// Connect probes the credentials and registers the connection.
func (s *Service) Connect(ctx context.Context, req ConnectRequest) (ConnectResponse, error) {
	ctx, span := observability.StartSpan(ctx, "connect")
	defer span.End()
	timer := metrics.NewTimer("connect")
	defer timer.Stop()

	id, err := s.manager.Register(ctx, manager.Credentials{
		Host:     req.Host,
		Port:     req.Port,
		Database: req.Database,
		Username: req.Username,
		Password: req.Password,
		Name:     req.Name,
	})
	metrics.RecordOperation("connect", err)
	if err != nil {
		return ConnectResponse{}, err
	}
	return ConnectResponse{ConnectionID: id}, nil
}

// DisconnectRequest identifies the connection to remove.
type DisconnectRequest struct {
	ConnectionID string `json:"connection_id"`
}

// DisconnectResponse acknowledges the removal.
type DisconnectResponse struct {
	OK bool `json:"ok"`
}

// Disconnect closes any live handle and deletes the persisted record.
func (s *Service) Disconnect(ctx context.Context, req DisconnectRequest) (DisconnectResponse, error) {
	ctx, span := observability.StartSpan(ctx, "disconnect")
	defer span.End()
	timer := metrics.NewTimer("disconnect")
	defer timer.Stop()

	err := s.manager.Unregister(ctx, req.ConnectionID)
	metrics.RecordOperation("disconnect", err)
	if err != nil {
		return DisconnectResponse{}, err
	}
	return DisconnectResponse{OK: true}, nil
}

// ListConnectionsResponse returns every registered connection summary.
type ListConnectionsResponse struct {
	Connections []manager.ConnectionSummary `json:"connections"`
}

// ListConnections returns the registry view without touching the network.
func (s *Service) ListConnections(ctx context.Context) (ListConnectionsResponse, error) {
	_, span := observability.StartSpan(ctx, "list_connections")
	defer span.End()

	summaries := s.manager.List()
	metrics.RecordOperation("list_connections", nil)
	return ListConnectionsResponse{Connections: summaries}, nil
}

// ListTablesRequest identifies the connection to inspect.
type ListTablesRequest struct {
	ConnectionID string `json:"connection_id"`
}

// ListTablesResponse returns the table names.
type ListTablesResponse struct {
	Tables []string `json:"tables"`
}

// ListTables lists the tables of the external database.
func (s *Service) ListTables(ctx context.Context, req ListTablesRequest) (ListTablesResponse, error) {
	ctx, span := observability.StartSpan(ctx, "list_tables")
	defer span.End()
	timer := metrics.NewTimer("list_tables")
	defer timer.Stop()

	tables, err := s.manager.ListTables(ctx, req.ConnectionID)
	metrics.RecordOperation("list_tables", err)
	if err != nil {
		return ListTablesResponse{}, err
	}
	return ListTablesResponse{Tables: tables}, nil
}

// GetTableSchemaRequest identifies the table to describe.
type GetTableSchemaRequest struct {
	ConnectionID string `json:"connection_id"`
	TableName    string `json:"table_name"`
}

// GetTableSchemaResponse returns cached or fresh table metadata.
type GetTableSchemaResponse struct {
	Columns []schema.Column `json:"columns"`
	Indexes []schema.Index  `json:"indexes"`
}

// GetTableSchema returns column and index metadata, cache-first.
func (s *Service) GetTableSchema(ctx context.Context, req GetTableSchemaRequest) (GetTableSchemaResponse, error) {
	ctx, span := observability.StartSpan(ctx, "get_table_schema")
	defer span.End()
	timer := metrics.NewTimer("get_table_schema")
	defer timer.Stop()

	tableSchema, err := s.manager.GetTableSchema(ctx, req.ConnectionID, req.TableName)
	metrics.RecordOperation("get_table_schema", err)
	if err != nil {
		return GetTableSchemaResponse{}, err
	}
	return GetTableSchemaResponse{
		Columns: tableSchema.Columns,
		Indexes: tableSchema.Indexes,
	}, nil
}

// ImportTableRequest identifies one table to import.
type ImportTableRequest struct {
	ConnectionID   string `json:"connection_id"`
	TableName      string `json:"table_name"`
	CollectionName string `json:"collection_name"`
}

// ImportTableResponse summarizes the derived collection.
type ImportTableResponse struct {
	Success        bool   `json:"success"`
	CollectionName string `json:"collection_name"`
	FieldCount     int    `json:"field_count"`
}

// ImportTable imports one table into the host metadata store.
func (s *Service) ImportTable(ctx context.Context, req ImportTableRequest) (ImportTableResponse, error) {
	ctx, span := observability.StartSpan(ctx, "import_table")
	defer span.End()
	timer := metrics.NewTimer("import_table")
	defer timer.Stop()

	collection, err := s.manager.ImportOne(ctx, req.ConnectionID, req.TableName, req.CollectionName)
	metrics.RecordOperation("import_table", err)
	if err != nil {
		return ImportTableResponse{}, err
	}
	return ImportTableResponse{
		Success:        true,
		CollectionName: collection.Name,
		FieldCount:     len(collection.Fields),
	}, nil
}

// ImportTablesRequest identifies the batch of tables to import.
type ImportTablesRequest struct {
	ConnectionID string   `json:"connection_id"`
	TableNames   []string `json:"table_names"`
}

// ImportTablesResponse carries the aggregated batch outcome.
type ImportTablesResponse struct {
	Outcome manager.ImportOutcome `json:"outcome"`
}

// ImportTables imports a batch of tables with bounded concurrency.
func (s *Service) ImportTables(ctx context.Context, req ImportTablesRequest) (ImportTablesResponse, error) {
	ctx, span := observability.StartSpan(ctx, "import_tables")
	defer span.End()
	timer := metrics.NewTimer("import_tables")
	defer timer.Stop()

	outcome, err := s.manager.ImportMany(ctx, req.ConnectionID, req.TableNames)
	metrics.RecordOperation("import_tables", err)
	if err != nil {
		return ImportTablesResponse{}, err
	}
	return ImportTablesResponse{Outcome: outcome}, nil
}

// PreviewTableDataRequest identifies the table to sample.
type PreviewTableDataRequest struct {
	ConnectionID string `json:"connection_id"`
	TableName    string `json:"table_name"`
	Limit        int    `json:"limit,omitempty"`
}

// PreviewTableDataResponse returns sampled rows.
type PreviewTableDataResponse struct {
	Rows []map[string]interface{} `json:"rows"`
}

// PreviewTableData returns a bounded sample of table rows.
func (s *Service) PreviewTableData(ctx context.Context, req PreviewTableDataRequest) (PreviewTableDataResponse, error) {
	ctx, span := observability.StartSpan(ctx, "preview_table_data")
	defer span.End()
	timer := metrics.NewTimer("preview_table_data")
	defer timer.Stop()

	rows, err := s.manager.PreviewTableData(ctx, req.ConnectionID, req.TableName, req.Limit)
	metrics.RecordOperation("preview_table_data", err)
	if err != nil {
		return PreviewTableDataResponse{}, err
	}
	return PreviewTableDataResponse{Rows: rows}, nil
}

// HealthResponse reports the manager's health status.
type HealthResponse struct {
	Status string `json:"status"`
}

// Health reports healthy, shutting_down, or db_inactive when the credential
// store is unreachable.
func (s *Service) Health(ctx context.Context) HealthResponse {
	if s.manager.Draining() {
		return HealthResponse{Status: StatusShuttingDown}
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.credentials.Ping(pingCtx); err != nil {
		s.logger.Warn("credential store unreachable", zap.Error(err))
		return HealthResponse{Status: StatusDBInactive}
	}

	return HealthResponse{Status: StatusHealthy}
}

// Dispatch adapts a raw JSON payload onto the typed action methods. This is
// the single stable interface host-integration glue binds to.
func (s *Service) Dispatch(ctx context.Context, action string, payload []byte) ([]byte, error) {
	switch action {
	case "connect":
		var req ConnectRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeValidation, "invalid connect payload")
		}
		resp, err := s.Connect(ctx, req)
		if err != nil {
			return nil, err
		}
		return json.Marshal(resp)

	case "disconnect":
		var req DisconnectRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeValidation, "invalid disconnect payload")
		}
		resp, err := s.Disconnect(ctx, req)
		if err != nil {
			return nil, err
		}
		return json.Marshal(resp)

	case "listConnections":
		resp, err := s.ListConnections(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(resp)

	case "listTables":
		var req ListTablesRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeValidation, "invalid listTables payload")
		}
		resp, err := s.ListTables(ctx, req)
		if err != nil {
			return nil, err
		}
		return json.Marshal(resp)

	case "getTableSchema":
		var req GetTableSchemaRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeValidation, "invalid getTableSchema payload")
		}
		resp, err := s.GetTableSchema(ctx, req)
		if err != nil {
			return nil, err
		}
		return json.Marshal(resp)

	case "importTable":
		var req ImportTableRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeValidation, "invalid importTable payload")
		}
		resp, err := s.ImportTable(ctx, req)
		if err != nil {
			return nil, err
		}
		return json.Marshal(resp)

	case "importTables":
		var req ImportTablesRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeValidation, "invalid importTables payload")
		}
		resp, err := s.ImportTables(ctx, req)
		if err != nil {
			return nil, err
		}
		return json.Marshal(resp)

	case "previewTableData":
		var req PreviewTableDataRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeValidation, "invalid previewTableData payload")
		}
		resp, err := s.PreviewTableData(ctx, req)
		if err != nil {
			return nil, err
		}
		return json.Marshal(resp)

	case "health":
		return json.Marshal(s.Health(ctx))

	default:
		return nil, errors.Newf(errors.ErrorTypeValidation, "unknown action %q", action)
	}
}
