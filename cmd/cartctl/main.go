package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"

	"github.com/aromelle/cartsync/internal/backend"
	"github.com/aromelle/cartsync/internal/cart"
	"github.com/aromelle/cartsync/internal/config"
	"github.com/aromelle/cartsync/internal/domain"
)

func main() {
	if len(os.Args) < 3 {
		usage()
		os.Exit(1)
	}

	credential := os.Args[1]
	command := os.Args[2]
	args := os.Args[3:]

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	client := backend.NewClient(cfg.Backend, logger)
	sync := cart.New(client, credential, logger)
	defer sync.Close()

	ctx := context.Background()

	current, err := sync.Load(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load cart: %v\n", err)
		os.Exit(1)
	}

	switch command {
	case "get":
		// Already loaded
	case "add":
		if len(args) < 2 {
			usage()
			os.Exit(1)
		}
		quantity, err := strconv.Atoi(args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid quantity: %v\n", err)
			os.Exit(1)
		}
		size := ""
		if len(args) > 2 {
			size = args[2]
		}
		current, err = sync.AddItem(ctx, args[0], quantity, size)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to add item: %v\n", err)
			os.Exit(1)
		}
	case "set":
		if len(args) < 2 {
			usage()
			os.Exit(1)
		}
		quantity, err := strconv.Atoi(args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid quantity: %v\n", err)
			os.Exit(1)
		}
		current, err = sync.UpdateQuantity(ctx, args[0], quantity)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to update item: %v\n", err)
			os.Exit(1)
		}
	case "remove":
		if len(args) < 1 {
			usage()
			os.Exit(1)
		}
		current, err = sync.RemoveItem(ctx, args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to remove item: %v\n", err)
			os.Exit(1)
		}
	default:
		usage()
		os.Exit(1)
	}

	printCart(current)
}

func printCart(c domain.Cart) {
	if len(c.Items) == 0 {
		fmt.Println("Cart is empty.")
		return
	}

	for _, item := range c.Items {
		label := item.Product.Name
		if item.Product.Size != "" {
			label += " (" + item.Product.Size + ")"
		}
		fmt.Printf("%s  %s x%d  %.2f\n", item.ID, label, item.Quantity, item.UnitPrice*float64(item.Quantity))
	}
	fmt.Printf("\nTotal: %d items, %.2f\n", c.TotalCount(), c.TotalPrice())
}

func usage() {
	fmt.Println("Usage: go run cmd/cartctl/main.go <credential> <command> [args]")
	fmt.Println("Commands:")
	fmt.Println("  get                              show the cart")
	fmt.Println("  add <product-id> <qty> [size]    add a product line")
	fmt.Println("  set <item-id> <qty>              set a line's quantity")
	fmt.Println("  remove <item-id>                 remove a line")
}
