// Package registry resolves the on-chain facts the secret service depends on:
// task descriptions, and the owners of applications and datasets.
//
// StaticProvider keeps both in memory and can be loaded from a JSON file. It
// is what the service runs with when task descriptions are pushed by the
// orchestrator, and what tests use.
//
// ChainOwnerResolver reads ownership from the chain by calling the owner()
// view of the application or dataset contract through any go-ethereum
// ContractCaller, typically an *ethclient.Client.
//
// A static registry file looks like:
//
//	{
//	  "tasks": {
//	    "0xtask": {"chain_task_id": "0xtask", "worker": "0xworker", "app_address": "0xapp", ...}
//	  },
//	  "owners": {
//	    "0xapp": "0xdeveloper"
//	  }
//	}
package registry
