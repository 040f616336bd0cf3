package apps

import (
	"context"
	"fmt"

	"github.com/MCPJam/ext-apps/dogapi"
	"github.com/MCPJam/ext-apps/mcpservice"
)

const (
	metaOutputTemplate   = "openai/outputTemplate"
	metaInvoking         = "openai/toolInvocation/invoking"
	metaInvoked          = "openai/toolInvocation/invoked"
	metaWidgetAccessible = "openai/widgetAccessible"
)

const (
	breedImagesMinCount     = 1
	breedImagesMaxCount     = 30
	breedImagesDefaultCount = 3
)

type randomDogArgs struct {
	Breed string `json:"breed,omitempty" jsonschema:"description=Optional breed name to constrain the lookup"`
}

type breedImagesArgs struct {
	Breed string `json:"breed" jsonschema:"description=Breed name to fetch images for"`
	Count *int   `json:"count,omitempty" jsonschema:"minimum=1,maximum=30,default=3,description=Number of images to fetch"`
}

type listBreedsArgs struct{}

// NewTools builds the three dog tools, each bound to its rendering widget
// through the output template metadata.
func NewTools(client *dogapi.Client) *mcpservice.ToolsContainer {
	return mcpservice.NewToolsContainer(
		newRandomDogTool(client),
		newBreedImagesTool(client),
		newListBreedsTool(client),
	)
}

// reportToolError converts an upstream or validation failure into an
// error-flagged result carrying `{"error": message}`; the protocol exchange
// itself always succeeds.
func reportToolError(w mcpservice.ToolResponseWriter, message string) error {
	if err := w.SetStructured(map[string]string{"error": message}); err != nil {
		return err
	}
	w.SetError(true)
	return nil
}

func widgetMeta(w mcpservice.ToolResponseWriter, widgetName string) {
	w.SetMeta(metaOutputTemplate, widgetURIPrefix+widgetName+".html")
}

func newRandomDogTool(client *dogapi.Client) mcpservice.StaticTool {
	return mcpservice.NewTool("get-random-dog",
		func(ctx context.Context, w mcpservice.ToolResponseWriter, args randomDogArgs) error {
			img, err := client.RandomImage(ctx, args.Breed)
			if err != nil {
				return reportToolError(w, err.Error())
			}
			breed := args.Breed
			if breed == "" {
				breed = dogapi.BreedFromImageURL(img)
			}
			if err := w.SetStructured(map[string]any{
				"imageUrl": img,
				"breed":    breed,
			}); err != nil {
				return err
			}
			widgetMeta(w, "random-dog")
			return nil
		},
		mcpservice.WithToolTitle("Get a random dog"),
		mcpservice.WithToolDescription("Fetch a random dog photo, optionally constrained to a breed, and render it in the dog card widget."),
		mcpservice.WithToolMeta(metaOutputTemplate, widgetURIPrefix+"random-dog.html"),
		mcpservice.WithToolMeta(metaInvoking, "Fetching a dog..."),
		mcpservice.WithToolMeta(metaInvoked, "Found a dog"),
		mcpservice.WithToolMeta(metaWidgetAccessible, true),
	)
}

func newBreedImagesTool(client *dogapi.Client) mcpservice.StaticTool {
	return mcpservice.NewTool("get-breed-images",
		func(ctx context.Context, w mcpservice.ToolResponseWriter, args breedImagesArgs) error {
			if args.Breed == "" {
				return reportToolError(w, "breed is required")
			}
			count := breedImagesDefaultCount
			if args.Count != nil {
				count = *args.Count
			}
			// Bounds are enforced before any outbound fetch.
			if count < breedImagesMinCount || count > breedImagesMaxCount {
				return reportToolError(w, fmt.Sprintf("count must be between %d and %d", breedImagesMinCount, breedImagesMaxCount))
			}
			imgs, err := client.BreedImages(ctx, args.Breed, count)
			if err != nil {
				return reportToolError(w, err.Error())
			}
			if err := w.SetStructured(map[string]any{
				"breed":     args.Breed,
				"imageUrls": imgs,
			}); err != nil {
				return err
			}
			widgetMeta(w, "breed-gallery")
			return nil
		},
		mcpservice.WithToolTitle("Get breed images"),
		mcpservice.WithToolDescription("Fetch several photos of one breed and render them in the gallery widget."),
		mcpservice.WithToolMeta(metaOutputTemplate, widgetURIPrefix+"breed-gallery.html"),
		mcpservice.WithToolMeta(metaInvoking, "Fetching breed photos..."),
		mcpservice.WithToolMeta(metaInvoked, "Fetched breed photos"),
		mcpservice.WithToolMeta(metaWidgetAccessible, true),
	)
}

func newListBreedsTool(client *dogapi.Client) mcpservice.StaticTool {
	return mcpservice.NewTool("list-breeds",
		func(ctx context.Context, w mcpservice.ToolResponseWriter, args listBreedsArgs) error {
			breeds, err := client.ListBreeds(ctx)
			if err != nil {
				return reportToolError(w, err.Error())
			}
			if err := w.SetStructured(map[string]any{
				"breeds": breeds,
			}); err != nil {
				return err
			}
			widgetMeta(w, "breed-list")
			return nil
		},
		mcpservice.WithToolTitle("List dog breeds"),
		mcpservice.WithToolDescription("List every known breed and sub-breed in the explorer widget."),
		mcpservice.WithToolMeta(metaOutputTemplate, widgetURIPrefix+"breed-list.html"),
		mcpservice.WithToolMeta(metaInvoking, "Listing breeds..."),
		mcpservice.WithToolMeta(metaInvoked, "Listed breeds"),
		mcpservice.WithToolMeta(metaWidgetAccessible, true),
	)
}
