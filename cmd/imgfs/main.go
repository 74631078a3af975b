package main

import (
	"fmt"
	"io/ioutil"
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/mit-pdos/go-imgfs/config"
	"github.com/mit-pdos/go-imgfs/disk"
	"github.com/mit-pdos/go-imgfs/fs"
	"github.com/mit-pdos/go-imgfs/util"
)

var conf *config.Config

func main() {
	app := cli.App{
		Name:  "imgfs",
		Usage: "create and edit imgfs disk images",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "image",
				Aliases: []string{"i"},
				Usage:   "path of the disk image (default from IMGFS_IMAGE)",
			},
			&cli.Uint64Flag{
				Name:  "debug",
				Usage: "debug print level (default from IMGFS_DEBUG)",
			},
		},
		Before: loadConfig,
		Commands: []*cli.Command{{
			Name:  "mkfs",
			Usage: "create a new, empty image",
			Flags: []cli.Flag{
				&cli.Uint64Flag{Name: "block-size", Usage: "block size in bytes"},
				&cli.Uint64Flag{Name: "blocks", Usage: "image size in blocks"},
				&cli.Uint64Flag{Name: "inodes", Usage: "inode table capacity"},
			},
			Action: mkfs,
		}, {
			Name:   "info",
			Usage:  "print the image layout and free space",
			Action: withFs(info),
		}, {
			Name:      "mkdir",
			Usage:     "create a directory",
			ArgsUsage: "PATH",
			Action: withFs(func(fsys *fs.Fs, ctx *cli.Context) error {
				return fsys.Mkdir(ctx.Args().First())
			}),
		}, {
			Name:      "touch",
			Usage:     "create an empty file",
			ArgsUsage: "PATH",
			Action: withFs(func(fsys *fs.Fs, ctx *cli.Context) error {
				return fsys.Mkfile(ctx.Args().First())
			}),
		}, {
			Name: "write",
			Usage: "replace a file's contents with DATA, or with stdin " +
				"if DATA is omitted",
			ArgsUsage: "PATH [DATA]",
			Action:    withFs(write),
		}, {
			Name:      "cat",
			Usage:     "print a file",
			ArgsUsage: "PATH",
			Action:    withFs(cat),
		}, {
			Name:      "rm",
			Usage:     "remove a file",
			ArgsUsage: "PATH",
			Action: withFs(func(fsys *fs.Fs, ctx *cli.Context) error {
				return fsys.Delete(ctx.Args().First())
			}),
		}, {
			Name:      "rmdir",
			Usage:     "remove an empty directory",
			ArgsUsage: "PATH",
			Action: withFs(func(fsys *fs.Fs, ctx *cli.Context) error {
				return fsys.Rmdir(ctx.Args().First())
			}),
		}, {
			Name:      "ls",
			Usage:     "list a directory (default /)",
			ArgsUsage: "[PATH]",
			Action:    withFs(ls),
		}},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("imgfs: %v", err)
	}
}

func loadConfig(ctx *cli.Context) error {
	c, err := config.Load()
	if err != nil {
		return err
	}
	if ctx.IsSet("image") {
		c.Image = ctx.String("image")
	}
	if ctx.IsSet("debug") {
		c.Debug = ctx.Uint64("debug")
	}
	if c.LogFile != "" {
		if _, err := util.SetLogFile(c.LogFile); err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
	}
	util.SetDebug(c.Debug)
	conf = c
	return nil
}

func mkfs(ctx *cli.Context) error {
	if ctx.IsSet("block-size") {
		conf.BlockSize = ctx.Uint64("block-size")
	}
	if ctx.IsSet("blocks") {
		conf.NumBlocks = ctx.Uint64("blocks")
	}
	if ctx.IsSet("inodes") {
		conf.MaxInodes = ctx.Uint64("inodes")
	}
	if err := conf.Validate(); err != nil {
		return err
	}
	sb := conf.Layout()
	d, err := disk.Create(conf.Image, sb.DiskSize())
	if err != nil {
		return err
	}
	defer d.Close()
	if err := fs.Format(d, sb); err != nil {
		return err
	}
	fmt.Printf("%s: %d blocks of %d bytes, %d inodes\n",
		conf.Image, sb.NumBlocks, sb.BlockSize, sb.MaxInodes)
	return nil
}

// withFs runs f on the mounted image and unmounts it afterwards.
func withFs(f func(fsys *fs.Fs, ctx *cli.Context) error) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		if conf.Image == "" {
			return fmt.Errorf("no image given; use --image or IMGFS_IMAGE")
		}
		d, err := disk.Open(conf.Image)
		if err != nil {
			return err
		}
		defer d.Close()
		fsys, err := fs.Mount(d)
		if err != nil {
			return err
		}
		if err := f(fsys, ctx); err != nil {
			if uerr := fsys.Unmount(); uerr != nil {
				util.DPrintf(0, "imgfs: %v\n", uerr)
			}
			return err
		}
		return fsys.Unmount()
	}
}

func info(fsys *fs.Fs, ctx *cli.Context) error {
	sb := fsys.Super()
	fmt.Printf("magic:        %#08x\n", sb.Magic)
	fmt.Printf("block size:   %d\n", sb.BlockSize)
	fmt.Printf("blocks:       %d\n", sb.NumBlocks)
	fmt.Printf("inodes:       %d\n", sb.MaxInodes)
	fmt.Printf("bitmap start: %d\n", sb.BitmapStart)
	fmt.Printf("inode start:  %d\n", sb.InodeStart)
	fmt.Printf("data start:   %d\n", sb.DataStart)
	fmt.Printf("free blocks:  %d of %d\n", fsys.NumFree(), sb.NDataBlocks())
	return nil
}

func write(fsys *fs.Fs, ctx *cli.Context) error {
	var data []byte
	if ctx.Args().Len() > 1 {
		data = []byte(ctx.Args().Get(1))
	} else {
		b, err := ioutil.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
		data = b
	}
	n, err := fsys.Write(ctx.Args().First(), data)
	if err != nil {
		return err
	}
	if n < uint64(len(data)) {
		log.Printf("imgfs: wrote %d of %d bytes", n, len(data))
	}
	return nil
}

func cat(fsys *fs.Fs, ctx *cli.Context) error {
	b := make([]byte, fsys.Super().BlockSz())
	n, err := fsys.Read(ctx.Args().First(), b)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(b[:n])
	return err
}

func ls(fsys *fs.Fs, ctx *cli.Context) error {
	path := "/"
	if ctx.Args().Present() {
		path = ctx.Args().First()
	}
	ents, err := fsys.List(path)
	if err != nil {
		return err
	}
	for _, e := range ents {
		fmt.Printf("%d\t%s\n", e.Inum, e.Name)
	}
	return nil
}
