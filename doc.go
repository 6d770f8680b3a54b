// Package tablelink manages the lifecycle of connections to external MySQL
// databases on behalf of a host application: registering credentials,
// materializing pooled handles lazily, caching table schemas, importing
// table definitions as derived collections, reaping idle handles and
// draining everything on shutdown.
//
// # Architecture
//
// TableLink is organized around a single connection manager:
//
// 1. Registry: named credential records persisted through a credential
// store, each optionally holding one live pooled handle.
//
// 2. Lazy pools: no physical connection exists until an operation needs
// one; reaped or restored connections re-materialize transparently.
//
// 3. Schema cache: table metadata is served cache-first with a TTL so
// repeated inspection never hammers the external database.
//
// 4. Bounded import: bulk table imports run in fixed-size concurrent
// chunks, isolating per-table failures from the rest of the batch.
//
// # Quick Start
//
// Wire a manager and expose it through the service surface:
//
//	import (
//	    "context"
//	    "github.com/tablelink/tablelink/internal/manager"
//	    "github.com/tablelink/tablelink/internal/service"
//	    "github.com/tablelink/tablelink/pkg/config"
//	)
//
//	cfg := config.NewDefaultConfig()
//	mgr := manager.New(cfg, credentials, collections, driver, cipher, log)
//	svc := service.New(mgr, credentials)
//
//	resp, _ := svc.Connect(context.Background(), service.ConnectRequest{
//	    Host: "db.internal", Port: 3306, Database: "shop", Username: "reader",
//	})
//
// See the package documentation under internal/manager and internal/service
// for the full operation surface.
package tablelink
