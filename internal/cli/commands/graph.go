package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leaprest/internal/cli/output"
	"github.com/leapstack-labs/leaprest/internal/dag"
)

// GraphOutput is the JSON form of the graph command.
type GraphOutput struct {
	Levels         [][]GraphNode `json:"levels"`
	TotalRelations int           `json:"total_relations"`
	TotalKeys      int           `json:"total_keys"`
}

// GraphNode is a relation with the keys it holds and the keys pointing at it.
type GraphNode struct {
	Relation     string      `json:"relation"`
	References   []GraphEdge `json:"references,omitempty"`
	ReferencedBy []GraphEdge `json:"referenced_by,omitempty"`
}

// GraphEdge is one foreign key seen from a relation.
type GraphEdge struct {
	Relation string `json:"relation"`
	Key      string `json:"key"`
}

// NewGraphCommand creates the graph command.
func NewGraphCommand() *cobra.Command {
	var relation string

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Show the relation graph",
		Long: `Display the foreign key graph of the schema.

Relations are grouped by level: level 0 references nothing, every other
relation sits one level above the deepest relation it references. Embedding
follows these edges in both directions.

Output adapts to environment:
  - Terminal: Styled output with colors
  - Piped/Scripted: Markdown format (agent-friendly)`,
		Example: `  # Show the whole graph
  leaprest graph

  # Show only what is reachable from one relation
  leaprest graph --relation public.projects

  # Output as JSON
  leaprest graph --output json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGraph(cmd, relation)
		},
	}

	cmd.Flags().StringVar(&relation, "relation", "", "Limit to relations connected to schema.name")

	return cmd
}

func runGraph(cmd *cobra.Command, relation string) error {
	cmdCtx := NewCommandContext(cmd)
	r := cmdCtx.Renderer

	cat, err := cmdCtx.loadCatalog(cmd.Context())
	if err != nil {
		return err
	}
	out, err := buildGraphOutput(cat.Graph(), relation)
	if err != nil {
		return err
	}

	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(out)
	case output.ModeMarkdown:
		graphMarkdown(r, out)
	default:
		graphText(r, out)
	}
	return nil
}

func buildGraphOutput(g *dag.Graph, relation string) (*GraphOutput, error) {
	var keep map[string]bool
	if relation != "" {
		reachable := g.Reachable(relation)
		if reachable == nil {
			return nil, fmt.Errorf("relation %q not found in the graph", relation)
		}
		keep = make(map[string]bool, len(reachable))
		for _, id := range reachable {
			keep[id] = true
		}
	}

	levels, err := g.Levels()
	if err != nil {
		// Mutually referencing relations have no levels; list them flat.
		levels = [][]string{nil}
		for _, n := range g.GetAllNodes() {
			levels[0] = append(levels[0], n.ID)
		}
	}

	out := &GraphOutput{Levels: make([][]GraphNode, 0, len(levels))}
	for _, level := range levels {
		nodes := make([]GraphNode, 0, len(level))
		for _, id := range level {
			if keep != nil && !keep[id] {
				continue
			}
			node := GraphNode{Relation: id}
			for _, e := range g.OutEdges(id) {
				node.References = append(node.References, GraphEdge{Relation: e.To, Key: e.Label})
				out.TotalKeys++
			}
			for _, e := range g.InEdges(id) {
				node.ReferencedBy = append(node.ReferencedBy, GraphEdge{Relation: e.From, Key: e.Label})
			}
			nodes = append(nodes, node)
		}
		if len(nodes) > 0 {
			out.Levels = append(out.Levels, nodes)
		}
		out.TotalRelations += len(nodes)
	}
	return out, nil
}

func edgeList(edges []GraphEdge) string {
	parts := make([]string, len(edges))
	for i, e := range edges {
		parts[i] = fmt.Sprintf("%s (%s)", e.Relation, e.Key)
	}
	return strings.Join(parts, ", ")
}

// graphText outputs the graph in styled text format.
func graphText(r *output.Renderer, out *GraphOutput) {
	styles := r.Styles()

	r.Header(1, "Relation Graph")

	for i, level := range out.Levels {
		r.Println(styles.Header2.Render(fmt.Sprintf("Level %d:", i)))
		for _, node := range level {
			r.Printf("  %s\n", styles.Relation.Render(node.Relation))
			if len(node.References) > 0 {
				r.Printf("    %s %s\n", styles.Muted.Render("references:"), edgeList(node.References))
			}
			if len(node.ReferencedBy) > 0 {
				r.Printf("    %s %s\n", styles.Muted.Render("referenced by:"), edgeList(node.ReferencedBy))
			}
		}
		r.Println("")
	}

	r.Println(styles.Muted.Render(fmt.Sprintf("Total: %d relations, %d foreign keys", out.TotalRelations, out.TotalKeys)))
}

// graphMarkdown outputs the graph in markdown format.
func graphMarkdown(r *output.Renderer, out *GraphOutput) {
	r.Println(output.FormatHeader(1, "Relation Graph"))
	r.Println("")

	for i, level := range out.Levels {
		r.Println(output.FormatHeader(2, fmt.Sprintf("Level %d", i)))
		for _, node := range level {
			r.Printf("- %s\n", node.Relation)
			if len(node.References) > 0 {
				r.Printf("  - references: %s\n", edgeList(node.References))
			}
			if len(node.ReferencedBy) > 0 {
				r.Printf("  - referenced by: %s\n", edgeList(node.ReferencedBy))
			}
		}
		r.Println("")
	}

	r.Println(output.FormatHeader(2, "Summary"))
	r.Println(output.FormatKeyValue("Total Relations", fmt.Sprint(out.TotalRelations)))
	r.Println(output.FormatKeyValue("Total Foreign Keys", fmt.Sprint(out.TotalKeys)))
}
