package sqlite

import (
	"context"
	"fmt"

	"github.com/pmcore/pmcored/internal/types"
)

// checkAncestryCycle walks parent_id upward from startParent, rejecting if
// candidate appears in the chain. Walking stops after visiting more nodes
// than the project has work items, which catches a corrupt chain without
// looping forever.
func (t *Tx) checkAncestryCycle(ctx context.Context, projectID, candidate, startParent types.ID) error {
	var bound int
	if err := t.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM work_items WHERE project_id = ? AND deleted_at IS NULL`, projectID,
	).Scan(&bound); err != nil {
		return fmt.Errorf("count work items: %w", err)
	}

	current := startParent
	for steps := 0; steps <= bound; steps++ {
		if current == candidate {
			return types.NewError(types.KindDependencyCycle, "ancestry cycle: %s is already an ancestor", candidate)
		}
		var parentStr *string
		row := t.conn.QueryRowContext(ctx,
			`SELECT parent_id FROM work_items WHERE id = ? AND deleted_at IS NULL`, current)
		if err := row.Scan(&parentStr); err != nil {
			// Parent row missing mid-walk: chain ends here, no cycle found.
			return nil
		}
		if parentStr == nil {
			return nil
		}
		id, err := types.ParseID(*parentStr)
		if err != nil {
			return fmt.Errorf("parse ancestor id: %w", err)
		}
		current = id
	}
	return types.NewError(types.KindDependencyCycle, "ancestry chain exceeds project size, suspected cycle")
}

// dependencyCycleWouldForm reports whether adding a blocks edge
// blockingID -> blockedID would close a cycle, i.e. whether blockingID is
// already reachable from blockedID by following existing blocks edges.
// relates_to edges never participate.
func (t *Tx) dependencyCycleWouldForm(ctx context.Context, blockingID, blockedID types.ID) (bool, error) {
	visited := map[types.ID]bool{}
	stack := []types.ID{blockedID}

	for len(stack) > 0 {
		n := len(stack) - 1
		node := stack[n]
		stack = stack[:n]
		if visited[node] {
			continue
		}
		visited[node] = true
		if node == blockingID {
			return true, nil
		}

		rows, err := t.conn.QueryContext(ctx,
			`SELECT blocked_item_id FROM dependencies
			 WHERE blocking_item_id = ? AND type = 'blocks' AND deleted_at IS NULL`, node)
		if err != nil {
			return false, fmt.Errorf("walk dependency graph: %w", err)
		}
		var next []types.ID
		for rows.Next() {
			var idStr string
			if err := rows.Scan(&idStr); err != nil {
				rows.Close()
				return false, fmt.Errorf("scan dependency edge: %w", err)
			}
			id, err := types.ParseID(idStr)
			if err != nil {
				rows.Close()
				return false, fmt.Errorf("parse dependency edge: %w", err)
			}
			next = append(next, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return false, err
		}
		for _, id := range next {
			if !visited[id] {
				stack = append(stack, id)
			}
		}
	}
	return false, nil
}
