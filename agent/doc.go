// Copyright 2024 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a MIT license that can be
// found in the LICENSE file.

/*
Package agent holds the agent registry used by the workflow orchestrator.

Agents are opaque workers: the core only knows how to look one up by name and
hand it a Task. Business logic (qualification scoring, audits, proposal text)
lives behind the Handler interface and is registered explicitly at startup.

# Types

  - Handler / HandlerFunc: Process(ctx, Task) (Result, error)
  - Task: task type, input data and context maps
  - Result: map with Success() and Score() helpers
  - Registry: name → Handler, overwrite on re-register

# Built-ins

The package ships two plumbing handlers. Coordinator validates the task type
and echoes the routing label. DataAgent fetches a resource through the data
provider and reports source and confidence. RegisterDefaults wires both
into a Registry.
*/
package agent
