// objpolicy builds an object-centric policy for a given observation layout, runs it on a batch of
// random observations and reports the network sizes, the actions and the attention over the objects.
//
// Example:
//
//	objpolicy -object_index=1,5,7,9 -object_classes=0,1,2,2 -num_tasks=2 -input_size=11 \
//		-set="objects_translator_hidden=32,32" -batch=4
//
// Without -object_index it uses the default layout: a 4-feature agent, one target and two enemies.
package main

import (
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/ui/commandline"
	"github.com/gomlx/objectrl/pkg/ml/layers/mlp"
	"github.com/gomlx/objectrl/pkg/ml/layers/objects"
	"github.com/gomlx/objectrl/pkg/rl/policy"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	_ "github.com/gomlx/gomlx/backends/default"
)

var (
	flagInputSize     = flag.Int("input_size", 0, "Width of the observations. Required with -object_index.")
	flagObjectIndex   = flag.String("object_index", "", "Comma-separated first column of each slot: the agent first, then the objects.")
	flagObjectClasses = flag.String("object_classes", "", "Comma-separated class label of each slot: 0 for the agent, 1..N for the objects.")
	flagNumTasks      = flag.Int("num_tasks", 0, "Number of tasks. If > 0 column 0 of the observations holds the task id.")
	flagOutputSize    = flag.Int("output_size", 2, "Size of the actions.")
	flagBatch         = flag.Int("batch", 4, "Number of random observations to evaluate.")
	flagSeed          = flag.Uint64("seed", 42, "Seed for the weights and the observations.")
	flagScope         = flag.String("scope", "policy", "Scope of the policy variables.")
	flagBackend       = flag.String("backend", "", "Backend configuration, e.g. \"xla:cpu\". If empty GOMLX_BACKEND or the default backend is used.")
)

// createDefaultContext sets the default hyperparameters, so they can be listed and changed with -set.
func createDefaultContext() *context.Context {
	ctx := context.New()
	ctx.SetParams(map[string]any{
		mlp.ParamActivation:           "relu",
		mlp.ParamLayerNorm:            false,
		mlp.ParamBiasInit:             0.1,
		objects.ParamAffordanceSize:   20,
		objects.ParamAffordanceHidden: []int{20},
		objects.ParamTranslatorHidden: []int{10, 10},
		objects.ParamAttentionHidden:  []int{10},
	})
	return ctx
}

func main() {
	ctx := createDefaultContext()
	settings := commandline.CreateContextSettingsFlag(ctx, "")
	klog.InitFlags(nil)
	flag.Parse()
	paramsSet, err := commandline.ParseContextSettings(ctx, *settings)
	if err != nil {
		klog.Errorf("Failed to parse -set=%q: %+v", *settings, err)
		os.Exit(1)
	}
	if len(paramsSet) > 0 {
		klog.V(1).Infof("Hyperparameters set:\n%s", commandline.SprintModifiedContextSettings(ctx, paramsSet))
	}

	layout, err := buildLayout()
	if err != nil {
		klog.Errorf("Invalid layout: %v", err)
		os.Exit(1)
	}
	if *flagBatch <= 0 {
		klog.Errorf("-batch must be > 0, got %d", *flagBatch)
		os.Exit(1)
	}

	if *flagBackend != "" {
		must.M(os.Setenv("GOMLX_BACKEND", *flagBackend))
	}
	backend := backends.MustNew()
	must.M(ctx.SetRNGStateFromSeed(int64(*flagSeed)))
	policyCtx := ctx.In(*flagScope)
	p := must.M1(policy.NewObjectPolicy(backend, policyCtx, layout, *flagOutputSize, nil))

	obs := randomObservations(layout, *flagBatch, *flagSeed)
	actions := must.M1(p.GetActions(obs))
	attention := must.M1(p.Attention(obs))

	report(backend, ctx, layout, obs, actions, attention)
}

// buildLayout creates the layout from the flags, or the default layout if -object_index is not set.
func buildLayout() (*objects.Layout, error) {
	if *flagObjectIndex == "" {
		if *flagObjectClasses != "" || *flagNumTasks != 0 {
			return nil, errors.New("-object_classes and -num_tasks require -object_index")
		}
		return objects.DefaultObjectLayout(), nil
	}
	objectIndex, err := parseInts(*flagObjectIndex)
	if err != nil {
		return nil, errors.WithMessage(err, "-object_index")
	}
	objectClasses, err := parseInts(*flagObjectClasses)
	if err != nil {
		return nil, errors.WithMessage(err, "-object_classes")
	}
	return objects.NewLayout(*flagInputSize, objectIndex, objectClasses, *flagNumTasks)
}

func parseInts(list string) ([]int, error) {
	var values []int
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.Atoi(part)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid integer %q in %q", part, list)
		}
		values = append(values, v)
	}
	return values, nil
}

// randomObservations draws features uniformly from [-1, 1), and valid task ids if the layout has a task column.
func randomObservations(layout *objects.Layout, batchSize int, seed uint64) [][]float32 {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	obs := make([][]float32, batchSize)
	for b := range obs {
		obs[b] = make([]float32, layout.InputSize())
		for ii := range obs[b] {
			obs[b][ii] = 2*rng.Float32() - 1
		}
		if layout.HasTaskColumn() {
			obs[b][0] = float32(rng.IntN(layout.NumTasks()))
		}
	}
	return obs
}

func report(backend backends.Backend, ctx *context.Context, layout *objects.Layout, obs, actions, attention [][]float32) {
	fmt.Println(titleStyle.Render("Summary"))
	table := newTable(false, lipgloss.Right, lipgloss.Left)
	table.Row(nil, "backend", backend.Name())
	table.Row(nil, "observation size", humanize.Comma(int64(layout.InputSize())))
	table.Row(nil, "agent size", humanize.Comma(int64(layout.AgentSize())))
	table.Row(nil, "# objects", humanize.Comma(int64(layout.NumObjects())))
	table.Row(nil, "object size", humanize.Comma(int64(layout.ObjectSize())))
	table.Row(nil, "# classes", humanize.Comma(int64(layout.NumClasses())))
	table.Row(nil, "# tasks", humanize.Comma(int64(layout.NumTasks())))

	var numVars, numParams int
	var memory uintptr
	ctx.InAbsPath(context.RootScope + *flagScope).EnumerateVariablesInScope(func(v *context.Variable) {
		if !v.Trainable {
			return
		}
		numVars++
		numParams += v.Shape().Size()
		memory += v.Shape().Memory()
	})
	table.Row(nil, "# variables", humanize.Comma(int64(numVars)))
	table.Row(nil, "# parameters", humanize.Comma(int64(numParams)))
	table.Row(nil, "# bytes", humanize.Bytes(uint64(memory)))
	fmt.Println(table.Table.Render())

	fmt.Println(titleStyle.Render("Objects"))
	table = newTable(true, lipgloss.Right, lipgloss.Left)
	table.Table.Headers("Object", "Columns", "Class")
	for k := range layout.NumObjects() {
		slot := layout.ObjectSlot(k)
		table.Row(nil, strconv.Itoa(k), fmt.Sprintf("%d:%d", slot.Start, slot.End), strconv.Itoa(layout.ObjectClass(k)+1))
	}
	fmt.Println(table.Table.Render())

	fmt.Println(titleStyle.Render("Actions"))
	headers := []string{"#"}
	if layout.HasTaskColumn() {
		headers = append(headers, "Task")
	}
	headers = append(headers, "Action")
	for k := range layout.NumObjects() {
		headers = append(headers, fmt.Sprintf("Object %d", k))
	}
	table = newTable(true, lipgloss.Right)
	table.Table.Headers(headers...)
	for b := range obs {
		row := []string{strconv.Itoa(b)}
		if layout.HasTaskColumn() {
			row = append(row, strconv.Itoa(int(obs[b][0])))
		}
		row = append(row, formatValues(actions[b]))
		for _, w := range attention[b] {
			row = append(row, fmt.Sprintf("%.1f%%", 100*w))
		}
		// Highlight the object with most attention.
		table.Row([]int{len(row) - len(attention[b]) + argMax(attention[b])}, row...)
	}
	fmt.Println(table.Table.Render())
}
